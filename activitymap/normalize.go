// Package activitymap flattens auth activity events into audit records.
package activitymap

import (
	"context"
	"maps"
	"strings"
	"time"

	auth "github.com/goliatone/go-auth-bridge"
)

const (
	MetadataKeyActorType  = "actor_type"
	MetadataKeyFromStatus = "from_status"
	MetadataKeyToStatus   = "to_status"
)

const (
	defaultChannel    = "auth"
	defaultObjectType = "user"
	defaultActorID    = "system"
)

// Record is the transport agnostic shape of an activity event.
type Record struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type Option func(*options)

type options struct {
	channel       string
	objectType    string
	actorFallback string
	clock         func() time.Time
}

func WithChannel(channel string) Option {
	return func(o *options) {
		o.channel = strings.TrimSpace(channel)
	}
}

func WithObjectType(objectType string) Option {
	return func(o *options) {
		o.objectType = strings.TrimSpace(objectType)
	}
}

// WithActorFallback names the actor used when neither the event actor nor
// its user is known, e.g. a failed login for an unknown email.
func WithActorFallback(actorID string) Option {
	return func(o *options) {
		o.actorFallback = strings.TrimSpace(actorID)
	}
}

func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
		clock:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Normalize converts event into a Record. The event metadata is copied,
// never mutated.
func Normalize(event auth.ActivityEvent, opts ...Option) Record {
	o := newOptions(opts)
	return o.normalize(event)
}

func (o options) normalize(event auth.ActivityEvent) Record {
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = o.clock().UTC()
	}

	return Record{
		ActorID:    firstNonEmpty(strings.TrimSpace(event.Actor.ID), strings.TrimSpace(event.UserID), o.actorFallback),
		Verb:       string(event.EventType),
		ObjectType: o.objectType,
		ObjectID:   strings.TrimSpace(event.UserID),
		Channel:    o.channel,
		Metadata:   metadata(event),
		OccurredAt: occurredAt,
	}
}

func metadata(event auth.ActivityEvent) map[string]any {
	out := map[string]any{}
	maps.Copy(out, event.Metadata)

	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		if _, ok := out[MetadataKeyActorType]; !ok {
			out[MetadataKeyActorType] = actorType
		}
	}
	if event.FromStatus != "" {
		out[MetadataKeyFromStatus] = string(event.FromStatus)
	}
	if event.ToStatus != "" {
		out[MetadataKeyToStatus] = string(event.ToStatus)
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

// LogSink writes every event to a logger as a normalized audit line.
type LogSink struct {
	logger auth.Logger
	opts   options
}

var _ auth.ActivitySink = (*LogSink)(nil)

func NewLogSink(logger auth.Logger, opts ...Option) *LogSink {
	if logger == nil {
		logger = auth.NewZapLogger(nil)
	}
	return &LogSink{logger: logger, opts: newOptions(opts)}
}

func (s *LogSink) Record(_ context.Context, event auth.ActivityEvent) error {
	rec := s.opts.normalize(event)

	args := []any{
		"verb", rec.Verb,
		"actor_id", rec.ActorID,
		"object_type", rec.ObjectType,
		"object_id", rec.ObjectID,
		"channel", rec.Channel,
		"occurred_at", rec.OccurredAt,
	}
	if len(rec.Metadata) > 0 {
		args = append(args, "metadata", rec.Metadata)
	}

	s.logger.Info("audit", args...)
	return nil
}
