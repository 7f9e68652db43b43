// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやハンドラー層から利用する。
type MetricsCollector interface {
	RecordFetchOutcome(kind string)
	RecordUpstreamStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordTransition(transition string)
	RecordNotificationSent()
	RecordNotificationFailure()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	fetchOutcome   *prometheus.CounterVec
	upstreamStatus *prometheus.CounterVec
	fetchLatency   prometheus.Histogram
	transitions    *prometheus.CounterVec
	notifySent     prometheus.Counter
	notifyFail     prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restockd_fetch_outcome_total",
			Help: "フェッチ結果の分類別合計数",
		}, []string{"kind"}),
		upstreamStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restockd_upstream_status_total",
			Help: "上流APIのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "restockd_fetch_latency_seconds",
			Help:    "商品フェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restockd_transitions_total",
			Help: "状態遷移の分類別合計数",
		}, []string{"transition"}),
		notifySent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "restockd_notifications_sent_total",
			Help: "送信された通知の合計数",
		}),
		notifyFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "restockd_notifications_fail_total",
			Help: "送信に失敗した通知の合計数",
		}),
	}

	reg.MustRegister(
		c.fetchOutcome,
		c.upstreamStatus,
		c.fetchLatency,
		c.transitions,
		c.notifySent,
		c.notifyFail,
	)

	return c
}

// RecordFetchOutcome はフェッチ結果の分類を記録する。
func (c *Collector) RecordFetchOutcome(kind string) {
	c.fetchOutcome.WithLabelValues(kind).Inc()
}

// RecordUpstreamStatus は上流APIのHTTPステータスコードを記録する。
func (c *Collector) RecordUpstreamStatus(statusCode int) {
	c.upstreamStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はフェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordTransition は状態遷移の分類を記録する。
func (c *Collector) RecordTransition(transition string) {
	c.transitions.WithLabelValues(transition).Inc()
}

// RecordNotificationSent は通知送信成功を記録する。
func (c *Collector) RecordNotificationSent() {
	c.notifySent.Inc()
}

// RecordNotificationFailure は通知送信失敗を記録する。
func (c *Collector) RecordNotificationFailure() {
	c.notifyFail.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
