package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// 接收消息数
	statRxMessagesDesc = prometheus.NewDesc(
		prometheus.BuildFQName("channel", "stat", "rx_messages"),
		"Messages received since the last swap",
		[]string{"name"}, nil,
	)
	// 接收字节数
	statRxBytesDesc = prometheus.NewDesc(
		prometheus.BuildFQName("channel", "stat", "rx_bytes"),
		"Bytes received since the last swap",
		[]string{"name"}, nil,
	)
	// 发送消息数
	statTxMessagesDesc = prometheus.NewDesc(
		prometheus.BuildFQName("channel", "stat", "tx_messages"),
		"Messages transmitted since the last swap",
		[]string{"name"}, nil,
	)
	// 发送字节数
	statTxBytesDesc = prometheus.NewDesc(
		prometheus.BuildFQName("channel", "stat", "tx_bytes"),
		"Bytes transmitted since the last swap",
		[]string{"name"}, nil,
	)
	// 处理耗时
	statTimeDesc = prometheus.NewDesc(
		prometheus.BuildFQName("channel", "stat", "process_seconds_sum"),
		"Total per-message processing time since the last swap",
		[]string{"name"}, nil,
	)
)

// StatCollector exposes the context stat list as Prometheus metrics. Reads
// are non-destructive: scraping does not interfere with monitor Swap calls.
// StatCollector 将上下文统计列表暴露为 Prometheus 指标。读取是非破坏性的：
// 抓取不干扰监控方的 Swap 调用。
type StatCollector struct {
	ctx *Context
}

// NewStatCollector creates a collector over the context's stat list. Register
// it with a prometheus.Registerer to export the counters.
// NewStatCollector 创建上下文统计列表上的收集器。注册到 prometheus.Registerer
// 即可导出计数器。
func NewStatCollector(ctx *Context) *StatCollector {
	return &StatCollector{ctx: ctx}
}

func (c *StatCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- statRxMessagesDesc
	ch <- statRxBytesDesc
	ch <- statTxMessagesDesc
	ch <- statTxBytesDesc
	ch <- statTimeDesc
}

func (c *StatCollector) Collect(ch chan<- prometheus.Metric) {
	for _, stat := range c.ctx.StatList() {
		snap := stat.Read()
		name := stat.Name()
		ch <- prometheus.MustNewConstMetric(statRxMessagesDesc, prometheus.GaugeValue, float64(snap.RxMessages), name)
		ch <- prometheus.MustNewConstMetric(statRxBytesDesc, prometheus.GaugeValue, float64(snap.RxBytes), name)
		ch <- prometheus.MustNewConstMetric(statTxMessagesDesc, prometheus.GaugeValue, float64(snap.TxMessages), name)
		ch <- prometheus.MustNewConstMetric(statTxBytesDesc, prometheus.GaugeValue, float64(snap.TxBytes), name)
		ch <- prometheus.MustNewConstMetric(statTimeDesc, prometheus.GaugeValue, float64(snap.Time.Sum)/1e9, name)
	}
}
