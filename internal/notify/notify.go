// Package notify hands notification requests to the external sender. The
// core never renders or delivers messages itself.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/besikta/inspection-server/internal/models"
)

// DefaultStream is the Redis stream the e-mail sender consumes.
const DefaultStream = "notifications:offers"

type Dispatcher interface {
	Dispatch(ctx context.Context, n models.Notification) error
}

// Stream publishes notifications to a Redis stream with fields kind and
// payload (the JSON encoded notification).
type Stream struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

func NewStream(client redis.UniversalClient, stream string, maxLen int64) *Stream {
	if stream == "" {
		stream = DefaultStream
	}
	return &Stream{client: client, stream: stream, maxLen: maxLen}
}

func (s *Stream) Dispatch(ctx context.Context, n models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{"kind": string(n.Kind), "payload": string(payload)},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("publish notification %s: %w", n.ID, err)
	}
	return nil
}

// Log writes notifications to the log instead of delivering them. Used when
// no Redis is configured.
type Log struct {
	logger *zap.SugaredLogger
}

func NewLog(logger *zap.SugaredLogger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Dispatch(ctx context.Context, n models.Notification) error {
	l.logger.Infow("Notification requested",
		"id", n.ID,
		"kind", n.Kind,
		"offer_id", n.OfferID,
		"branch_id", n.BranchID,
		"recipient_role", n.RecipientRole,
		"attempt", n.Attempt,
	)
	return nil
}

// Recorder keeps dispatched notifications in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (r *Recorder) Dispatch(ctx context.Context, n models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

// Sent returns a copy of everything dispatched so far.
func (r *Recorder) Sent() []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Notification(nil), r.sent...)
}

// Kinds returns the kinds of everything dispatched so far, in order.
func (r *Recorder) Kinds() []models.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]models.NotificationKind, len(r.sent))
	for i, n := range r.sent {
		kinds[i] = n.Kind
	}
	return kinds
}
