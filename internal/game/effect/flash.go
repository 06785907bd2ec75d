package effect

import (
	"image/color"
	"sync"
	"time"
)

// DefaultFlashDuration is how long a hit flash holds its tint.
const DefaultFlashDuration = 150 * time.Millisecond

// Red is the hit flash tint.
var Red = color.RGBA{R: 0xff, A: 0xff}

// Tintable is a visual whose color can be read and overridden.
type Tintable interface {
	Color() color.RGBA
	SetColor(c color.RGBA)
}

// Flash tints a target for a fixed duration and then restores its color.
// Triggering while a flash is active extends it without losing the original
// color. Cancel restores immediately and drops the pending revert.
//
// Flash is safe for concurrent use so that a TimerScheduler revert may race
// with Trigger or Cancel.
type Flash struct {
	mu       sync.Mutex
	target   Tintable
	tint     color.RGBA
	duration time.Duration
	sched    Scheduler
	task     Task
	gen      uint64
	restore  color.RGBA
	active   bool
	closed   bool
}

// NewFlash returns a Flash over target.
//
// Precondition: target and sched must be non-nil.
// Postcondition: duration <= 0 is replaced by DefaultFlashDuration.
func NewFlash(target Tintable, tint color.RGBA, duration time.Duration, sched Scheduler) *Flash {
	if duration <= 0 {
		duration = DefaultFlashDuration
	}
	return &Flash{target: target, tint: tint, duration: duration, sched: sched}
}

// Trigger applies the tint and (re)schedules the revert.
//
// Postcondition: No-op once Cancel has been called.
func (f *Flash) Trigger() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	if !f.active {
		f.restore = f.target.Color()
		f.active = true
	}
	f.target.SetColor(f.tint)
	if f.task != nil {
		f.task.Stop()
	}
	f.gen++
	gen := f.gen
	f.task = f.sched.AfterFunc(f.duration, func() { f.revert(gen) })
}

// Active reports whether the tint is currently applied.
func (f *Flash) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// Cancel stops any pending revert, restores the original color and disables
// further triggers. Safe to call multiple times.
func (f *Flash) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.gen++
	if f.task != nil {
		f.task.Stop()
		f.task = nil
	}
	if f.active {
		f.target.SetColor(f.restore)
		f.active = false
	}
}

func (f *Flash) revert(gen uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// A stale revert from a superseded trigger must not undo the newer tint.
	if f.gen != gen || !f.active {
		return
	}
	f.target.SetColor(f.restore)
	f.active = false
	f.task = nil
}
