package kafka

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/exploration"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/prometheus"
)

// SourceService is stamped on every envelope this module publishes.
const SourceService = "family-explorer"

type messagePublisher interface {
	Publish(ctx context.Context, msg Message) error
}

// EventPublisher adapts the Producer to exploration.EventPublisher. Events are
// keyed by exploration id so that a consumer sees one exploration in order.
type EventPublisher struct {
	producer messagePublisher
	metrics  *prometheus.ExplorerMetrics
	logger   logging.Logger
}

// NewEventPublisher wraps p. metrics may be nil.
func NewEventPublisher(p *Producer, metrics *prometheus.ExplorerMetrics, logger logging.Logger) *EventPublisher {
	return newEventPublisher(p, metrics, logger)
}

func newEventPublisher(p messagePublisher, metrics *prometheus.ExplorerMetrics, logger logging.Logger) *EventPublisher {
	if metrics == nil {
		metrics = prometheus.NewNoopExplorerMetrics()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &EventPublisher{producer: p, metrics: metrics, logger: logger}
}

// Publish encodes e into an envelope and writes it.
func (p *EventPublisher) Publish(ctx context.Context, e exploration.Event) error {
	err := p.publish(ctx, e)
	p.metrics.RecordEvent(e.Type, err)
	if err != nil {
		p.logger.Warn("Failed to publish exploration event",
			logging.String("event_type", e.Type),
			logging.ExplorationID(e.ExplorationID),
			logging.Err(err))
	}
	return err
}

func (p *EventPublisher) publish(ctx context.Context, e exploration.Event) error {
	env, err := NewEventEnvelope(e.Type, SourceService, e)
	if err != nil {
		return err
	}
	if !e.OccurredAt.IsZero() {
		env.Timestamp = e.OccurredAt.UTC()
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	env.Metadata = map[string]string{
		"exploration_id": e.ExplorationID,
		"version":        strconv.FormatInt(e.Version, 10),
		"generation":     strconv.Itoa(e.Generation),
	}

	msg, err := env.ToMessage(e.ExplorationID)
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, msg)
}
