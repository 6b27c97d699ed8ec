package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_events_total",
		Help: "Количество обработанных событий по типу субъекта",
	}, []string{"kind"})

	EventFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_event_failures_total",
		Help: "Ошибки обработки отдельных событий",
	}, []string{"kind"})

	DeliveriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notify_deliveries_total",
		Help: "Успешно доставленные сообщения",
	})

	DeliveryErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notify_delivery_errors_total",
		Help: "Ошибки доставки сообщений",
	})

	SnapshotUpserts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notify_snapshot_upserts_total",
		Help: "Записи снапшотов отслеживаемых элементов",
	})

	CursorFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notify_cursor_failures_total",
		Help: "Сбои сдвига курсора прочитанных уведомлений",
	})

	BatchSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "notify_batch_seconds",
		Help:    "Время обработки пачки уведомлений",
		Buckets: prometheus.DefBuckets,
	})

	BatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "notify_batch_size",
		Help:    "Размер пачки уведомлений",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
	})

	BatchesRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notify_batches_rejected_total",
		Help: "Пачки, отклонённые шлюзом как дубликаты",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		EventsTotal,
		EventFailures,
		DeliveriesTotal,
		DeliveryErrors,
		SnapshotUpserts,
		CursorFailures,
		BatchSeconds,
		BatchSize,
		BatchesRejected,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// IncEvent увеличивает счётчик обработанных событий.
func IncEvent(kind string) {
	EventsTotal.WithLabelValues(kind).Inc()
}

// IncEventFailure увеличивает счётчик ошибок обработки событий.
func IncEventFailure(kind string) {
	EventFailures.WithLabelValues(kind).Inc()
}

// IncDelivery увеличивает счётчик доставленных сообщений.
func IncDelivery() {
	DeliveriesTotal.Inc()
}

// IncDeliveryError увеличивает счётчик ошибок доставки.
func IncDeliveryError() {
	DeliveryErrors.Inc()
}

// IncSnapshotUpsert увеличивает счётчик записанных снапшотов.
func IncSnapshotUpsert() {
	SnapshotUpserts.Inc()
}

// IncCursorFailure увеличивает счётчик сбоев сдвига курсора.
func IncCursorFailure() {
	CursorFailures.Inc()
}

// IncBatchRejected увеличивает счётчик отклонённых дубликатов пачек.
func IncBatchRejected() {
	BatchesRejected.Inc()
}

// ObserveBatch записывает длительность и размер обработанной пачки.
func ObserveBatch(start time.Time, size int) {
	BatchSeconds.Observe(time.Since(start).Seconds())
	BatchSize.Observe(float64(size))
}
