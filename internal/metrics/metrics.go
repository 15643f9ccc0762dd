// Package metrics 引擎运行指标（Prometheus）
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "echelon"

// 参与结果标签
const (
	OutcomeCommitted    = "committed"
	OutcomeNotFound     = "not_found"
	OutcomeExpired      = "expired"
	OutcomeTierMismatch = "tier_mismatch"
	OutcomeSoldOut      = "sold_out"
	OutcomeUnavailable  = "unavailable"
)

// Metrics 引擎指标集合，nil 接收者上的方法均为空操作
type Metrics struct {
	participations  *prometheus.CounterVec
	credits         *prometheus.CounterVec
	creditRetries   *prometheus.CounterVec
	liveConnections prometheus.Gauge
	fanoutDropped   prometheus.Counter
	fanoutFrames    *prometheus.CounterVec
}

// MustNewMetrics 在给定 registerer 上注册全部指标，注册失败直接 panic
// reg 为 nil 时使用全局 DefaultRegisterer；测试中请传入独立的 prometheus.NewRegistry()
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		participations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "participations_total",
				Help:      "Participation attempts by outcome.",
			},
			[]string{"outcome"},
		),
		credits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "credits_total",
				Help:      "Point credits by reason and status.",
			},
			[]string{"reason", "status"},
		),
		creditRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "credit_retries_total",
				Help:      "Queued credit retry attempts by result.",
			},
			[]string{"result"},
		),
		liveConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "fanout",
				Name:      "live_connections",
				Help:      "Currently registered live client connections.",
			},
		),
		fanoutDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fanout",
				Name:      "dropped_connections_total",
				Help:      "Live connections dropped because they were slow or failed to write.",
			},
		),
		fanoutFrames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fanout",
				Name:      "frames_total",
				Help:      "Live frames published by type.",
			},
			[]string{"type"},
		),
	}

	reg.MustRegister(
		m.participations,
		m.credits,
		m.creditRetries,
		m.liveConnections,
		m.fanoutDropped,
		m.fanoutFrames,
	)
	return m
}

// ObserveParticipation 记录一次参与结果
func (m *Metrics) ObserveParticipation(outcome string) {
	if m == nil {
		return
	}
	m.participations.WithLabelValues(outcome).Inc()
}

// ObserveCredit 记录一次积分入账，status: applied | replayed | failed | queued
func (m *Metrics) ObserveCredit(reason, status string) {
	if m == nil {
		return
	}
	m.credits.WithLabelValues(reason, status).Inc()
}

// ObserveCreditRetry 记录补偿队列的一次重试，result: applied | failed | abandoned
func (m *Metrics) ObserveCreditRetry(result string) {
	if m == nil {
		return
	}
	m.creditRetries.WithLabelValues(result).Inc()
}

// ConnectionOpened 实时连接数 +1
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.liveConnections.Inc()
}

// ConnectionClosed 实时连接数 -1
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.liveConnections.Dec()
}

// ConnectionDropped 慢连接 / 写失败被踢出
func (m *Metrics) ConnectionDropped() {
	if m == nil {
		return
	}
	m.fanoutDropped.Inc()
}

// FramePublished 记录一帧实时推送
func (m *Metrics) FramePublished(frameType string) {
	if m == nil {
		return
	}
	m.fanoutFrames.WithLabelValues(frameType).Inc()
}
