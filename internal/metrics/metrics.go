// metrics — счётчики исходов запросов и длительности обращений к зависимостям.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Зависимости.
const (
	DependencyAuthority   = "authority"
	DependencyStore       = "store"
	DependencyIdempotency = "idempotency"
)

// Результаты обращения к зависимости.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultTimeout = "timeout"
	ResultReject  = "reject" // зависимость ответила, но отклонила (например, невалидный токен)
)

// Recorder — хуки инструментирования; реализации: Prometheus и Noop.
type Recorder interface {
	// IncRequest учитывает исход запроса (stored, replayed или код ошибки).
	IncRequest(outcome string)
	ObserveDependency(dependency, result string, d time.Duration)
}

// Prometheus — Recorder поверх client_golang.
type Prometheus struct {
	requests   *prometheus.CounterVec
	dependency *prometheus.HistogramVec
}

// NewPrometheus создаёт коллекторы и регистрирует их в reg.
// Повторная регистрация паникует, поэтому в тестах нужен свой prometheus.NewRegistry().
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "user_intake_requests_total",
			Help: "Processed registration requests by outcome.",
		}, []string{"outcome"}),
		dependency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "user_intake_dependency_duration_seconds",
			Help:    "Duration of calls to external dependencies.",
			Buckets: prometheus.DefBuckets,
		}, []string{"dependency", "result"}),
	}

	reg.MustRegister(p.requests, p.dependency)

	return p
}

func (p *Prometheus) IncRequest(outcome string) {
	p.requests.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) ObserveDependency(dependency, result string, d time.Duration) {
	p.dependency.WithLabelValues(dependency, result).Observe(d.Seconds())
}

// Noop отбрасывает все события.
type Noop struct{}

func (Noop) IncRequest(string) {}
func (Noop) ObserveDependency(string, string, time.Duration) {}

var (
	_ Recorder = (*Prometheus)(nil)
	_ Recorder = Noop{}
)
