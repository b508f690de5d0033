package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "agentship"

// Span and attribute names.
const (
	SpanChat        = "agent.chat"
	AttrAgentName   = "agent.name"
	AttrUserID      = "agent.user_id"
	AttrSessionID   = "agent.session_id"
	AttrLLMModel    = "llm.model"
	AttrLLMTokens   = "llm.tokens"
	AttrLLMDecision = "llm.decision"
	AttrToolName    = "tool.name"
	AttrToolServer  = "tool.server_id"
	AttrAgentTool   = "tool.is_agent_tool"
)

// OTelObserver records chats as spans and LLM/tool activity as span events
// on the exporter configured by the host process.
type OTelObserver struct {
	tracer trace.Tracer
}

func NewOTelObserver() *OTelObserver {
	return &OTelObserver{tracer: otel.Tracer(tracerName)}
}

func (o *OTelObserver) BeforeAgent(ctx context.Context, agent, userID, sessionID string) context.Context {
	ctx, _ = o.tracer.Start(ctx, SpanChat,
		trace.WithAttributes(
			attribute.String(AttrAgentName, agent),
			attribute.String(AttrUserID, userID),
			attribute.String(AttrSessionID, sessionID),
		),
	)
	return ctx
}

func (o *OTelObserver) AfterAgent(ctx context.Context, _ string, _ time.Duration, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (o *OTelObserver) BeforeModel(context.Context, string, string) {}

func (o *OTelObserver) AfterModel(ctx context.Context, _, model, decision string, duration time.Duration, tokens int, err error) {
	span := trace.SpanFromContext(ctx)
	attrs := []attribute.KeyValue{
		attribute.String(AttrLLMModel, model),
		attribute.String(AttrLLMDecision, decision),
		attribute.Int(AttrLLMTokens, tokens),
		attribute.Int64("duration_ms", duration.Milliseconds()),
	}
	if err != nil {
		span.RecordError(err, trace.WithAttributes(attrs...))
		return
	}
	span.AddEvent("llm.call", trace.WithAttributes(attrs...))
}

func (o *OTelObserver) BeforeTool(context.Context, string, ToolCallInfo) {}

func (o *OTelObserver) AfterTool(ctx context.Context, _ string, info ToolCallInfo, duration time.Duration, err error) {
	span := trace.SpanFromContext(ctx)
	attrs := []attribute.KeyValue{
		attribute.String(AttrToolName, info.Tool),
		attribute.Bool(AttrAgentTool, info.IsAgentTool),
		attribute.Int64("duration_ms", duration.Milliseconds()),
	}
	if info.ServerID != "" {
		attrs = append(attrs, attribute.String(AttrToolServer, info.ServerID))
	}
	if err != nil {
		span.RecordError(err, trace.WithAttributes(attrs...))
		return
	}
	span.AddEvent("tool.call", trace.WithAttributes(attrs...))
}
