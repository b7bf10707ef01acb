package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/power-scheduler/internal/model"
)

const (
	DefaultStreamName       = "POWER"
	transitionSubjectPrefix = "power.transition."
	streamMaxAge            = 7 * 24 * time.Hour
	streamMaxMsgs           = -1
)

// TransitionSubject returns the subject a transition with the given target is published on
func TransitionSubject(target string) string {
	return transitionSubjectPrefix + target
}

// EventService publishes and consumes power transition events on JetStream
type EventService struct {
	js     nats.JetStreamContext
	stream string
	logger *zap.Logger
}

// NewEventService creates the event service and makes sure its stream exists
func NewEventService(ctx context.Context, js nats.JetStreamContext, stream string, logger *zap.Logger) (*EventService, error) {
	if stream == "" {
		stream = DefaultStreamName
	}

	s := &EventService{
		js:     js,
		stream: stream,
		logger: logger.Named("events"),
	}

	if err := s.setupStream(ctx); err != nil {
		return nil, fmt.Errorf("failed to setup stream: %w", err)
	}

	return s, nil
}

func (s *EventService) setupStream(ctx context.Context) error {
	_, err := s.js.StreamInfo(s.stream, nats.Context(ctx))
	if err == nil {
		s.logger.Info("Using existing stream", zap.String("stream", s.stream))
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to get stream info: %w", err)
	}

	_, err = s.js.AddStream(&nats.StreamConfig{
		Name:     s.stream,
		Subjects: []string{transitionSubjectPrefix + "*"},
		Storage:  nats.FileStorage,
		MaxAge:   streamMaxAge,
		MaxMsgs:  streamMaxMsgs,
	}, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	s.logger.Info("Stream created successfully", zap.String("stream", s.stream))
	return nil
}

// PublishTransition publishes a transition event
func (s *EventService) PublishTransition(ctx context.Context, t *model.Transition) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal transition: %w", err)
	}

	// Msg id lets JetStream drop duplicates of the same record
	_, err = s.js.Publish(TransitionSubject(t.Target), data, nats.Context(ctx), nats.MsgId(t.ID))
	if err != nil {
		s.logger.Error("Failed to publish transition",
			zap.String("transition_id", t.ID),
			zap.String("resource_id", t.ResourceID),
			zap.Error(err))
		return fmt.Errorf("failed to publish transition: %w", err)
	}

	s.logger.Debug("Transition published",
		zap.String("transition_id", t.ID),
		zap.String("resource_id", t.ResourceID))
	return nil
}

// SubscribeTransitions delivers every transition event to handler until ctx is done
func (s *EventService) SubscribeTransitions(ctx context.Context, handler func(*model.Transition)) error {
	sub, err := s.js.Subscribe(transitionSubjectPrefix+"*", func(msg *nats.Msg) {
		var t model.Transition
		if err := json.Unmarshal(msg.Data, &t); err != nil {
			s.logger.Error("Failed to unmarshal transition",
				zap.Error(err))
			return
		}

		handler(&t)
		msg.Ack()
	}, nats.DeliverNew())
	if err != nil {
		return fmt.Errorf("failed to subscribe to transitions: %w", err)
	}

	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
	}()

	return nil
}
