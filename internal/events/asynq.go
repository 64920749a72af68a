package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-commerce/internal/db"
	"github.com/noah-isme/toko-commerce/internal/obs"
)

const taskPrefix = "event:"

// TaskEnqueuer is satisfied by *asynq.Client.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskType names the asynq task carrying events of topic.
func TaskType(topic string) string {
	return taskPrefix + topic
}

// AsynqNotifier enqueues every event as an asynq task for the worker.
type AsynqNotifier struct {
	Client    TaskEnqueuer
	Queue     string
	MaxRetry  int
	Retention time.Duration
}

// Notify implements Notifier. The event id doubles as the task id so a
// re-emitted event is not enqueued twice.
func (n AsynqNotifier) Notify(ctx context.Context, event db.DomainEvent) (err error) {
	defer func() {
		if obs.EventPublishTotal != nil {
			obs.EventPublishTotal.WithLabelValues("asynq", obs.ResultLabel(err)).Inc()
		}
	}()
	if n.Client == nil {
		return fmt.Errorf("asynq notifier: client not configured")
	}
	data, err := marshalEnvelope(event)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.TaskID(event.ID.String())}
	if n.Queue != "" {
		opts = append(opts, asynq.Queue(n.Queue))
	}
	if n.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(n.MaxRetry))
	}
	if n.Retention > 0 {
		opts = append(opts, asynq.Retention(n.Retention))
	}
	_, err = n.Client.EnqueueContext(ctx, asynq.NewTask(TaskType(event.Topic), data), opts...)
	if err == asynq.ErrTaskIDConflict {
		return nil
	}
	return err
}

// DecodeTask restores the event carried by an event task.
func DecodeTask(t *asynq.Task) (db.DomainEvent, error) {
	if !strings.HasPrefix(t.Type(), taskPrefix) {
		return db.DomainEvent{}, fmt.Errorf("events: unexpected task type %q", t.Type())
	}
	ev, err := unmarshalEnvelope(t.Payload())
	if err != nil {
		return db.DomainEvent{}, fmt.Errorf("events: decode task: %w", asynq.SkipRetry)
	}
	return ev, nil
}

// HandlerFunc processes one delivered event.
type HandlerFunc func(ctx context.Context, event db.DomainEvent) error

// NewServeMux routes every topic's task type to handle.
func NewServeMux(logger zerolog.Logger, handle HandlerFunc) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	for _, topic := range Topics() {
		mux.HandleFunc(TaskType(topic), func(ctx context.Context, t *asynq.Task) error {
			ev, err := DecodeTask(t)
			if err != nil {
				logger.Error().Err(err).Str("task", t.Type()).Msg("drop malformed event task")
				return err
			}
			return handle(ctx, ev)
		})
	}
	return mux
}
