// Package journal records the outcome of damage, heal and death events.
package journal

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Kind classifies an Event.
type Kind string

const (
	KindHit   Kind = "hit"
	KindHeal  Kind = "heal"
	KindDeath Kind = "death"
)

// Event is one journaled state change.
type Event struct {
	// Run groups the events of one simulation run.
	Run      string
	Kind     Kind
	EntityID string
	Template string
	// Base is the requested amount; Final is the amount after modifiers. Both are
	// zero for deaths; for heals Final is the health actually restored.
	Base   int
	Final  int
	Health int
	At     time.Time
}

// Sink receives events.
type Sink interface {
	Record(ctx context.Context, e Event) error
}

// Nop discards every event.
type Nop struct{}

// Record does nothing.
func (Nop) Record(context.Context, Event) error { return nil }

// LogSink writes every event to a zap logger at info level.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink.
//
// Precondition: logger must be non-nil.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Record logs e.
func (s *LogSink) Record(_ context.Context, e Event) error {
	s.logger.Info("journal",
		zap.String("run", e.Run),
		zap.String("kind", string(e.Kind)),
		zap.String("entity", e.EntityID),
		zap.String("template", e.Template),
		zap.Int("base", e.Base),
		zap.Int("final", e.Final),
		zap.Int("health", e.Health),
		zap.Time("at", e.At),
	)
	return nil
}

// Memory keeps every event in memory. Safe for concurrent use.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// Record appends e.
func (m *Memory) Record(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

// Events returns a copy of the recorded events, oldest first.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Tee fans each event out to every sink and returns the first error.
type Tee []Sink

// Record forwards e to every sink, even after a failure.
func (t Tee) Record(ctx context.Context, e Event) error {
	var first error
	for _, s := range t {
		if err := s.Record(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
