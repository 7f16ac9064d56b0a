package bot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// staleCycles is how many missed intervals make /healthz fail.
const staleCycles = 3

// Handler serves /metrics, /healthz and /opportunities.
func (b *Bot) Handler(gatherer prometheus.Gatherer) http.Handler {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	router.HandleFunc("/healthz", b.handleHealth).Methods("GET")
	router.HandleFunc("/opportunities", b.handleOpportunities).Methods("GET")
	return router
}

// Serve runs the ops server on addr until ctx is cancelled.
func (b *Bot) Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           b.Handler(gatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	b.logger.Info("Ops server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type health struct {
	Status    string    `json:"status"`
	Cycles    int       `json:"cycles"`
	LastCycle time.Time `json:"lastCycle,omitempty"`
}

func (b *Bot) handleHealth(w http.ResponseWriter, r *http.Request) {
	last, cycles := b.Last()
	resp := health{Status: "ok", Cycles: cycles}
	status := http.StatusOK

	switch {
	case last == nil:
		resp.Status = "starting"
	default:
		resp.LastCycle = last.StartedAt
		if b.cfg.Monitor.Interval > 0 && time.Since(last.StartedAt) > staleCycles*b.cfg.Monitor.Interval {
			resp.Status = "stale"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

func (b *Bot) handleOpportunities(w http.ResponseWriter, r *http.Request) {
	last, _ := b.Last()
	if last == nil {
		writeJSON(w, http.StatusOK, &CycleReport{})
		return
	}
	writeJSON(w, http.StatusOK, last)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
