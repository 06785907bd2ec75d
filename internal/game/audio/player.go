// Package audio provides the one-shot sound event player used by damagables.
package audio

import (
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/damagable/internal/game/damagable"
)

// Played is one recorded sound event.
type Played struct {
	Event    string
	Position damagable.Vec3
}

// LogPlayer records every one-shot event and logs it at debug level. It stands
// in for the audio middleware in headless runs. Safe for concurrent use.
type LogPlayer struct {
	mu     sync.Mutex
	played []Played
	logger *zap.Logger
}

// NewLogPlayer creates a LogPlayer.
//
// Precondition: logger must be non-nil.
func NewLogPlayer(logger *zap.Logger) *LogPlayer {
	return &LogPlayer{logger: logger}
}

// PlayOneShot records event at pos.
func (p *LogPlayer) PlayOneShot(event string, pos damagable.Vec3) {
	p.mu.Lock()
	p.played = append(p.played, Played{Event: event, Position: pos})
	p.mu.Unlock()
	p.logger.Debug("sfx",
		zap.String("event", event),
		zap.Float64("x", pos.X),
		zap.Float64("y", pos.Y),
		zap.Float64("z", pos.Z),
	)
}

// Played returns every recorded event, oldest first.
func (p *LogPlayer) Played() []Played {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Played(nil), p.played...)
}

// Count returns how many times event has been played.
func (p *LogPlayer) Count(event string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.played {
		if e.Event == event {
			n++
		}
	}
	return n
}
