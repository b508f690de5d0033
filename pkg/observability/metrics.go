package observability

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsObserver exports chat, LLM and tool counters/latencies to the
// default Prometheus registry. The host process serves the scrape
// endpoint.
type MetricsObserver struct {
	chats        *prometheus.CounterVec
	chatDuration *prometheus.HistogramVec
	llmCalls     *prometheus.CounterVec
	llmTokens    *prometheus.CounterVec
	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
}

var (
	metricsObserver     *MetricsObserver
	metricsObserverOnce sync.Once
)

// NewMetricsObserver returns the process-wide metrics observer; Prometheus
// collectors can only be registered once.
func NewMetricsObserver() *MetricsObserver {
	metricsObserverOnce.Do(func() {
		metricsObserver = &MetricsObserver{
			chats: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "agentship_chats_total",
				Help: "Chat requests by agent and outcome.",
			}, []string{"agent", "outcome"}),
			chatDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "agentship_chat_duration_seconds",
				Help:    "Chat request latency by agent.",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			}, []string{"agent"}),
			llmCalls: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "agentship_llm_calls_total",
				Help: "LLM calls by model and outcome.",
			}, []string{"model", "outcome"}),
			llmTokens: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "agentship_llm_tokens_total",
				Help: "Tokens used by model.",
			}, []string{"model"}),
			toolCalls: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "agentship_tool_calls_total",
				Help: "Tool calls by tool and outcome.",
			}, []string{"tool", "outcome"}),
			toolDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "agentship_tool_duration_seconds",
				Help:    "Tool call latency by tool.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
			}, []string{"tool"}),
		}
	})
	return metricsObserver
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *MetricsObserver) BeforeAgent(ctx context.Context, _, _, _ string) context.Context {
	return ctx
}

func (m *MetricsObserver) AfterAgent(_ context.Context, agent string, duration time.Duration, err error) {
	m.chats.WithLabelValues(agent, outcome(err)).Inc()
	m.chatDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

func (m *MetricsObserver) BeforeModel(context.Context, string, string) {}

func (m *MetricsObserver) AfterModel(_ context.Context, _, model, _ string, _ time.Duration, tokens int, err error) {
	m.llmCalls.WithLabelValues(model, outcome(err)).Inc()
	if tokens > 0 {
		m.llmTokens.WithLabelValues(model).Add(float64(tokens))
	}
}

func (m *MetricsObserver) BeforeTool(context.Context, string, ToolCallInfo) {}

func (m *MetricsObserver) AfterTool(_ context.Context, _ string, info ToolCallInfo, duration time.Duration, err error) {
	m.toolCalls.WithLabelValues(info.Tool, outcome(err)).Inc()
	m.toolDuration.WithLabelValues(info.Tool).Observe(duration.Seconds())
}
