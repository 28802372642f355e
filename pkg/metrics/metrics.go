package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Fleet metrics
	ParcelsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "traceon_parcels_total",
			Help: "Total number of parcels by lifecycle status",
		},
		[]string{"status"},
	)

	DevicesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "traceon_devices_total",
			Help: "Total number of tracker devices by effective status",
		},
		[]string{"status"},
	)

	UsersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "traceon_users_total",
			Help: "Total number of accounts by role",
		},
		[]string{"role"},
	)

	UsersPendingApproval = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "traceon_users_pending_approval",
			Help: "Accounts waiting for admin verification",
		},
	)

	// Store metrics
	StoreSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "traceon_store_subscriptions_active",
			Help: "Currently open record-store subscriptions",
		},
	)

	StoreWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traceon_store_writes_total",
			Help: "Total record-store writes by operation",
		},
		[]string{"op"},
	)

	SnapshotsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "traceon_store_snapshots_dropped_total",
			Help: "Subtree snapshots dropped because a subscriber buffer was full",
		},
	)

	// Action metrics
	ActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traceon_actions_total",
			Help: "Total mutating actions by kind and outcome",
		},
		[]string{"action", "outcome"},
	)

	ActionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "traceon_action_duration_seconds",
			Help:    "Mutating action duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	NotificationsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traceon_notifications_emitted_total",
			Help: "Notifications written to user feeds by type",
		},
		[]string{"type"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traceon_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "traceon_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	WebsocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "traceon_websocket_clients",
			Help: "Connected dashboard websocket clients",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ParcelsTotal)
	prometheus.MustRegister(DevicesTotal)
	prometheus.MustRegister(UsersTotal)
	prometheus.MustRegister(UsersPendingApproval)
	prometheus.MustRegister(StoreSubscriptions)
	prometheus.MustRegister(StoreWritesTotal)
	prometheus.MustRegister(SnapshotsDropped)
	prometheus.MustRegister(ActionsTotal)
	prometheus.MustRegister(ActionDuration)
	prometheus.MustRegister(NotificationsEmitted)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(WebsocketClients)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed time for histogram observation
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time into the given observer
func (t *Timer) ObserveDuration(o prometheus.Observer) {
	o.Observe(t.Duration().Seconds())
}
