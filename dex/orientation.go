package dex

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/shopspring/decimal"
)

// Orienter picks the canonical base and quote of a token pair. The token
// ranked earliest in the preference list is the quote. When neither token is
// ranked the lower address is the base, so both orders of the same two
// tokens always orient the same way.
type Orienter struct {
	rank map[common.Address]int
}

func NewOrienter(preference []common.Address) *Orienter {
	rank := make(map[common.Address]int, len(preference))
	for i, addr := range preference {
		if _, ok := rank[addr]; !ok {
			rank[addr] = i
		}
	}
	return &Orienter{rank: rank}
}

// Orient returns base and quote for the pool tokens (token0, token1).
// inverted reports that token0 is the quote, in which case a token1-per-token0
// price must be inverted.
func (o *Orienter) Orient(token0, token1 types.Token) (pair types.Pair, inverted bool) {
	r0, ok0 := o.rank[token0.Address]
	r1, ok1 := o.rank[token1.Address]

	switch {
	case ok0 && ok1:
		inverted = r0 < r1
	case ok0:
		inverted = true
	case ok1:
		inverted = false
	default:
		inverted = bytes.Compare(token0.Address.Bytes(), token1.Address.Bytes()) > 0
	}

	if inverted {
		return types.Pair{Base: token1, Quote: token0}, true
	}
	return types.Pair{Base: token0, Quote: token1}, false
}

// OrientPrice converts a token1-per-token0 price into the pair's direction.
func OrientPrice(price1Per0 decimal.Decimal, inverted bool) decimal.Decimal {
	if !inverted {
		return price1Per0
	}
	if price1Per0.IsZero() {
		return decimal.Zero
	}
	return decimal.NewFromInt(1).DivRound(price1Per0, 18)
}
