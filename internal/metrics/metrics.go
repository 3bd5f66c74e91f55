// Package metrics は認証フローの Prometheus メトリクスを提供します。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "userauth"

// 結果ラベル
const (
	OutcomeSuccess      = "success"
	OutcomeDuplicate    = "duplicate"
	OutcomeInvalid      = "invalid"
	OutcomeNoSuchUser   = "no_such_user"
	OutcomeBadPassword  = "bad_password"
	OutcomeError        = "error"
	ReasonMissingToken  = "missing_token"
	ReasonInvalidToken  = "invalid_token"
	ReasonTokenMismatch = "token_mismatch"
)

// Metrics は認証関連のカウンターをまとめたものです。nil レシーバーでも安全に呼び出せます。
type Metrics struct {
	registrations  *prometheus.CounterVec
	logins         *prometheus.CounterVec
	gateRejections *prometheus.CounterVec
	hashSeconds    prometheus.Histogram
}

// New はメトリクスを作成し reg に登録します。
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Registration attempts by outcome.",
		}, []string{"outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		gateRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_rejections_total",
			Help:      "Requests rejected by the auth gate by reason.",
		}, []string{"reason"}),
		hashSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "hash_seconds",
			Help:      "Time spent in password hashing and verification.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
	}
	reg.MustRegister(m.registrations, m.logins, m.gateRejections, m.hashSeconds)
	return m
}

// NewRegistry はプロセス/Go ランタイムのコレクターを含むレジストリを作成します。
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler は /metrics 用のハンドラーを返します。
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) Registration(outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) GateRejection(reason string) {
	if m == nil {
		return
	}
	m.gateRejections.WithLabelValues(reason).Inc()
}

// ObserveHash はハッシュ計算時間を記録します。credential.BcryptHasher の observer に渡します。
func (m *Metrics) ObserveHash(seconds float64) {
	if m == nil {
		return
	}
	m.hashSeconds.Observe(seconds)
}
