package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"property_due_alerts/internal/app"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "due_alerts",
		Name:      "cycles_total",
		Help:      "Scan-and-dispatch cycles by result.",
	}, []string{"result"})

	alertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "due_alerts",
		Name:      "alerts_total",
		Help:      "Due alerts handled by a cycle, by outcome.",
	}, []string{"outcome"})

	markedOverdueTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "due_alerts",
		Name:      "obligations_marked_overdue_total",
		Help:      "Obligations moved from active to overdue.",
	})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "due_alerts",
		Name:      "cycle_duration_seconds",
		Help:      "Wall time of one scan-and-dispatch cycle.",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 300},
	})

	lastCycleTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "due_alerts",
		Name:      "last_cycle_timestamp_seconds",
		Help:      "Unix time the last cycle finished.",
	})
)

// RecordCycle folds a cycle report into the exported counters.
func RecordCycle(report *app.CycleReport, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	cyclesTotal.WithLabelValues(result).Inc()
	lastCycleTimestamp.SetToCurrentTime()
	if report == nil {
		return
	}
	alertsTotal.WithLabelValues("sent").Add(float64(report.Sent))
	alertsTotal.WithLabelValues("failed").Add(float64(report.Failed))
	alertsTotal.WithLabelValues("skipped").Add(float64(report.Skipped))
	alertsTotal.WithLabelValues("deferred").Add(float64(report.Deferred))
	markedOverdueTotal.Add(float64(report.MarkedOverdue))
	cycleDuration.Observe(report.Duration.Seconds())
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, log *logrus.Entry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", addr).Info("Metrics endpoint listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
