//go:build !noprom

package metrics

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromRecorder records into Prometheus collectors.
type PromRecorder struct {
	passTotal   *prom.CounterVec
	passSeconds *prom.HistogramVec
	agreement   *prom.HistogramVec
	toolTotal   *prom.CounterVec
	toolSeconds *prom.HistogramVec
	dbTotal     *prom.CounterVec
	dbSeconds   *prom.HistogramVec
}

// NewPromRecorder creates the collectors and registers them with reg.
func NewPromRecorder(reg prom.Registerer) *PromRecorder {
	p := &PromRecorder{
		passTotal: prom.NewCounterVec(prom.CounterOpts{
			Name: "extraction_passes_total",
			Help: "Total number of extraction passes by role",
		}, []string{"role", "model", "success"}),
		passSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "extraction_pass_seconds",
			Help:    "Extraction pass duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		}, []string{"role", "model", "success"}),
		agreement: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "arbitration_agreement_score",
			Help:    "Agreement score between the two independent passes",
			Buckets: prom.LinearBuckets(0, 0.1, 11),
		}, []string{"domain"}),
		toolTotal: prom.NewCounterVec(prom.CounterOpts{
			Name: "tool_calls_total",
			Help: "Total number of tool and API handler calls",
		}, []string{"tool", "success"}),
		toolSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "tool_call_seconds",
			Help:    "Tool and API handler duration in seconds",
			Buckets: prom.DefBuckets,
		}, []string{"tool", "success"}),
		dbTotal: prom.NewCounterVec(prom.CounterOpts{
			Name: "db_ops_total",
			Help: "Total number of DB operations",
		}, []string{"op", "success"}),
		dbSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "db_op_seconds",
			Help:    "DB operation duration in seconds",
			Buckets: prom.DefBuckets,
		}, []string{"op", "success"}),
	}
	reg.MustRegister(p.passTotal, p.passSeconds, p.agreement, p.toolTotal, p.toolSeconds, p.dbTotal, p.dbSeconds)
	return p
}

func (p *PromRecorder) IncPassTotal(role, model string, success bool) {
	p.passTotal.WithLabelValues(role, model, strconv.FormatBool(success)).Inc()
}

func (p *PromRecorder) ObservePassSeconds(role, model string, success bool, seconds float64) {
	p.passSeconds.WithLabelValues(role, model, strconv.FormatBool(success)).Observe(seconds)
}

func (p *PromRecorder) ObserveAgreement(domain string, score float64) {
	p.agreement.WithLabelValues(domain).Observe(score)
}

func (p *PromRecorder) IncToolTotal(tool string, success bool) {
	p.toolTotal.WithLabelValues(tool, strconv.FormatBool(success)).Inc()
}

func (p *PromRecorder) ObserveToolSeconds(tool string, success bool, seconds float64) {
	p.toolSeconds.WithLabelValues(tool, strconv.FormatBool(success)).Observe(seconds)
}

func (p *PromRecorder) IncDBOpTotal(op string, success bool) {
	p.dbTotal.WithLabelValues(op, strconv.FormatBool(success)).Inc()
}

func (p *PromRecorder) ObserveDBOpSeconds(op string, success bool, seconds float64) {
	p.dbSeconds.WithLabelValues(op, strconv.FormatBool(success)).Observe(seconds)
}

// Handler serves /metrics for the given gatherer and a plain /healthz.
func Handler(g prom.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func enablePrometheus(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening for metrics on %s: %w", addr, err)
	}
	registry := prom.NewRegistry()
	SetRecorder(NewPromRecorder(registry))

	go func() {
		if err := http.Serve(ln, Handler(registry)); err != nil {
			slog.Warn("metrics server stopped", "addr", addr, "err", err)
		}
	}()
	slog.Info("prometheus metrics enabled", "addr", ln.Addr().String())
	return nil
}
