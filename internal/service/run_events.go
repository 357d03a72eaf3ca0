package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/codemeet-api/internal/observability"
)

// NATS subjects for run events.
const (
	SubjectRunCompleted   = "codemeet.runs.completed"
	SubjectQuestionSolved = "codemeet.questions.solved"
)

// Run event types.
const (
	EventRunCompleted   = "run.completed"
	EventQuestionSolved = "question.solved"
)

// RunEvent is broadcast whenever a run finishes or a question is solved.
type RunEvent struct {
	Type       string    `json:"type"`
	Source     string    `json:"source"`
	Subject    string    `json:"subject"`
	Language   string    `json:"language,omitempty"`
	QuestionID uint      `json:"question_id,omitempty"`
	Tests      int       `json:"tests,omitempty"`
	Passed     bool      `json:"passed"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}

// RunEventPublisher fans run events out to redis and NATS.
type RunEventPublisher interface {
	Publish(ctx context.Context, event RunEvent) error
	Start(ctx context.Context)
	NodeID() string
}

type runEventPublisher struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	logger       zerolog.Logger
	nodeID       string
	handlers     []func(RunEvent)
}

// NewRunEventPublisher constructs a publisher. Either transport may be nil.
// Handlers receive events published by other nodes.
func NewRunEventPublisher(redisClient *redis.Client, channel string, natsConn *nats.Conn, logger zerolog.Logger, handlers ...func(RunEvent)) RunEventPublisher {
	return &runEventPublisher{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		logger:       logger.With().Str("component", "run_events").Logger(),
		nodeID:       uuid.NewString(),
		handlers:     handlers,
	}
}

func (p *runEventPublisher) NodeID() string {
	return p.nodeID
}

func (p *runEventPublisher) Publish(ctx context.Context, event RunEvent) error {
	event.Source = p.nodeID
	if event.SentAt.IsZero() {
		event.SentAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	observability.RunEvents().WithLabelValues(event.Type, "local").Inc()

	var errs []error
	if p.redis != nil && p.redisChannel != "" {
		if err := p.redis.Publish(ctx, p.redisChannel, payload).Err(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.nats != nil {
		if err := p.nats.Publish(subjectFor(event.Type), payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Start consumes events from the other API nodes until ctx is done.
func (p *runEventPublisher) Start(ctx context.Context) {
	if p.redis != nil && p.redisChannel != "" {
		go p.consumeRedis(ctx)
	}
	if p.nats != nil {
		go p.consumeNATS(ctx)
	}
}

func (p *runEventPublisher) consumeRedis(ctx context.Context) {
	pubsub := p.redis.Subscribe(ctx, p.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			p.logger.Error().Err(err).Msg("run event redis subscription closed")
			return
		}
		p.handleEvent([]byte(msg.Payload))
	}
}

func (p *runEventPublisher) consumeNATS(ctx context.Context) {
	var subs []*nats.Subscription
	for _, subject := range []string{SubjectRunCompleted, SubjectQuestionSolved} {
		sub, err := p.nats.QueueSubscribe(subject, "codemeet-run-events", func(msg *nats.Msg) {
			p.handleEvent(msg.Data)
		})
		if err != nil {
			p.logger.Error().Err(err).Str("subject", subject).Msg("failed to subscribe to nats subject")
			continue
		}
		subs = append(subs, sub)
	}

	go func() {
		<-ctx.Done()
		for _, sub := range subs {
			if err := sub.Drain(); err != nil {
				p.logger.Warn().Err(err).Msg("failed to drain run event subscription")
			}
		}
	}()
}

func (p *runEventPublisher) handleEvent(payload []byte) {
	var event RunEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		p.logger.Warn().Err(err).Msg("invalid run event payload")
		return
	}
	if event.Source == p.nodeID {
		return
	}

	observability.RunEvents().WithLabelValues(event.Type, "remote").Inc()
	for _, handler := range p.handlers {
		handler(event)
	}
}

func subjectFor(eventType string) string {
	if eventType == EventQuestionSolved {
		return SubjectQuestionSolved
	}
	return SubjectRunCompleted
}
