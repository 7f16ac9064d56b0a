package aggregator

import (
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/shopspring/decimal"
)

// Snapshot is the merged price table of one cycle. It is read-only once returned.
type Snapshot struct {
	// Table maps pair key to entry key (venue and token addresses) to the
	// deepest pool of that venue for those tokens. Same-symbol pools of
	// different tokens on one venue are kept apart.
	Table       map[string]map[string]types.PricePoint
	Venues      []string
	Counts      map[string]int
	VenueErrors map[string]error
	PoolErrors  map[string]int
	TakenAt     time.Time
}

// NewSnapshot creates an empty snapshot over venues in enumeration order.
func NewSnapshot(venues []string, at time.Time) *Snapshot {
	return &Snapshot{
		Table:       make(map[string]map[string]types.PricePoint),
		Venues:      venues,
		Counts:      make(map[string]int),
		VenueErrors: make(map[string]error),
		PoolErrors:  make(map[string]int),
		TakenAt:     at,
	}
}

// EntryKey identifies one venue's pool set for one token pair.
func EntryKey(venue string, pair types.Pair) string {
	return venue + "|" + pair.AddressKey()
}

// Add keeps the highest liquidity point per (pair, venue, token addresses);
// ties go to the lower pool id.
func (s *Snapshot) Add(p types.PricePoint) {
	key := p.Pair.Key()
	entries, ok := s.Table[key]
	if !ok {
		entries = make(map[string]types.PricePoint)
		s.Table[key] = entries
	}

	entry := EntryKey(p.Venue, p.Pair)
	cur, ok := entries[entry]
	if !ok {
		entries[entry] = p
		return
	}
	switch cmp := p.LiquidityUSD.Cmp(cur.LiquidityUSD); {
	case cmp > 0:
		entries[entry] = p
	case cmp == 0 && p.Pool.ID < cur.Pool.ID:
		entries[entry] = p
	}
}

// Pairs returns the pair keys in sorted order.
func (s *Snapshot) Pairs() []string {
	keys := make([]string, 0, len(s.Table))
	for k := range s.Table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Points returns the points of a pair in venue enumeration order, then by
// token addresses within a venue.
func (s *Snapshot) Points(pair string) []types.PricePoint {
	entries := s.Table[pair]
	rank := make(map[string]int, len(s.Venues))
	for i, v := range s.Venues {
		rank[v] = i
	}

	points := make([]types.PricePoint, 0, len(entries))
	for _, p := range entries {
		if _, ok := rank[p.Venue]; ok {
			points = append(points, p)
		}
	}
	sort.Slice(points, func(i, j int) bool {
		if ri, rj := rank[points[i].Venue], rank[points[j].Venue]; ri != rj {
			return ri < rj
		}
		return points[i].Pair.AddressKey() < points[j].Pair.AddressKey()
	})
	return points
}

// MedianPrice is the median across venues for pair, used to mark ETH to USD.
func (s *Snapshot) MedianPrice(pair string) (decimal.Decimal, bool) {
	points := s.Points(pair)
	if len(points) == 0 {
		return decimal.Zero, false
	}
	prices := make([]decimal.Decimal, len(points))
	for i, p := range points {
		prices[i] = p.Price
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].LessThan(prices[j]) })

	mid := len(prices) / 2
	if len(prices)%2 == 1 {
		return prices[mid], true
	}
	return prices[mid-1].Add(prices[mid]).Div(decimal.NewFromInt(2)), true
}

// Fingerprint hashes the table contents. Equal tables hash equally regardless of
// map iteration order.
func (s *Snapshot) Fingerprint() uint64 {
	h := xxhash.New()
	for _, pair := range s.Pairs() {
		_, _ = h.WriteString(pair)
		for _, p := range s.Points(pair) {
			_, _ = h.WriteString("|" + p.Venue + "|" + p.Pool.ID + "|" + p.Pair.AddressKey() + "|" + p.Price.String())
		}
		_, _ = h.WriteString("\n")
	}
	return h.Sum64()
}

// Size is the number of (pair, venue, token addresses) entries.
func (s *Snapshot) Size() int {
	n := 0
	for _, venues := range s.Table {
		n += len(venues)
	}
	return n
}
