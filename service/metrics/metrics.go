/*
 * @module service/metrics/metrics
 * @description Prometheus指标定义，通过 /metrics 暴露
 * @architecture 工具层 - 可观测性
 * @rules 标签取值必须是有限集合（模式、渠道、结果），不使用项目ID等高基数字段
 * @dependencies github.com/prometheus/client_golang
 * @refs main.go
 */

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QuotaPlansTotal 配额方案生成次数
	QuotaPlansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldwork",
		Name:      "quota_plans_total",
		Help:      "Number of quota plans generated, by quota mode and source.",
	}, []string{"mode", "source"})

	// CompletionsTotal 回收完成数
	CompletionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldwork",
		Name:      "completions_total",
		Help:      "Completion events processed, by ingest channel and result.",
	}, []string{"channel", "result"})

	// RebuildDuration 进度汇总重建耗时
	RebuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fieldwork",
		Name:      "rollup_rebuild_duration_seconds",
		Help:      "Duration of tracking rollup rebuilds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"result"})

	// OutboundRequestDuration 外部接口调用耗时
	OutboundRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fieldwork",
		Name:      "outbound_request_duration_seconds",
		Help:      "Duration of calls to the quota generator and panel provider.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"target", "operation", "result"})
)

// Result 将错误映射为结果标签
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveSince 记录从start到现在的耗时
func ObserveSince(h *prometheus.HistogramVec, start time.Time, labels ...string) {
	h.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
}
