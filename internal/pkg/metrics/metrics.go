package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はアプリケーションのメトリクスを管理する
type Metrics struct {
	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec

	// 座席確保の試行数（outcome: allocated, insufficient, window_closed, conflict, error）
	AllocationAttemptsTotal *prometheus.CounterVec

	// 予約のライフサイクル遷移数（event_type）
	ReservationTransitionsTotal *prometheus.CounterVec

	// 期限スイープで失効させた予約数
	SweepExpirationsTotal prometheus.Counter

	// outbox から配信したイベント数
	OutboxPublishedTotal prometheus.Counter

	// 分散ロックの操作時間（operation: acquire/release, status: success/failed）
	DistributedLockDuration *prometheus.HistogramVec

	// アクティブな予約数（status: held, paying, confirmed）
	ActiveReservations *prometheus.GaugeVec
}

// New は新しいMetricsインスタンスを作成し、デフォルトレジストリに登録する
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry は指定したレジストリにメトリクスを登録する
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		AllocationAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capacity_allocation_attempts_total",
				Help: "Total number of seat allocation attempts",
			},
			[]string{"outcome"},
		),
		ReservationTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_transitions_total",
				Help: "Total number of reservation lifecycle transitions",
			},
			[]string{"event_type"},
		),
		SweepExpirationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sweep_expirations_total",
				Help: "Total number of reservations expired by the sweeper",
			},
		),
		OutboxPublishedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "outbox_published_total",
				Help: "Total number of events published from the outbox",
			},
		),
		DistributedLockDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "distributed_lock_duration_seconds",
				Help:    "Time spent on distributed lock operations",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "status"},
		),
		ActiveReservations: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "active_reservations",
				Help: "Current number of active reservations",
			},
			[]string{"status"},
		),
	}

	// レジストリに登録
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AllocationAttemptsTotal,
		m.ReservationTransitionsTotal,
		m.SweepExpirationsTotal,
		m.OutboxPublishedTotal,
		m.DistributedLockDuration,
		m.ActiveReservations,
	)

	return m
}

// デフォルトのメトリクスインスタンス
var defaultMetrics *Metrics

// Init はデフォルトのメトリクスインスタンスを初期化する
func Init() *Metrics {
	defaultMetrics = New()
	return defaultMetrics
}

// Get はデフォルトのメトリクスインスタンスを返す
func Get() *Metrics {
	return defaultMetrics
}
