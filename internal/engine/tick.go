// Package engine provides the tick-based simulation loop and the driver that
// exercises the navigation core once per tick.
package engine

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sasha-s/go-deadlock"
)

// Engine drives the simulation forward.
type Engine struct {
	Tick           uint64        // Current tick counter (monotonic, never resets)
	Interval       time.Duration // Base tick interval (default 1 second)
	ReportInterval uint64        // Ticks between OnReport calls, 0 disables
	SaveInterval   uint64        // Ticks between OnSave calls, 0 disables

	// Callbacks, populated during setup.
	OnTick   func(tick uint64) // Every tick
	OnReport func(tick uint64) // Every ReportInterval ticks
	OnSave   func(tick uint64) // Every SaveInterval ticks

	mu      deadlock.Mutex
	speed   float64 // Multiplier: 1.0 = real-time, 0 = paused
	running atomic.Bool
	stopped bool // Stop was called; a later Run returns at once
	done    chan struct{}
}

// NewEngine creates a simulation engine with default settings.
func NewEngine() *Engine {
	return &Engine{
		Interval: time.Second,
		speed:    1.0,
	}
}

// Speed returns the current speed multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the speed multiplier. Zero or less pauses the loop.
func (e *Engine) SetSpeed(speed float64) {
	e.mu.Lock()
	e.speed = speed
	e.mu.Unlock()
	slog.Info("engine speed changed", "speed", speed)
}

// Running reports whether Run is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Run starts the simulation loop. Blocks until Stop() is called, and returns
// immediately if Stop already was.
func (e *Engine) Run() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.running.Store(true)
	e.done = make(chan struct{})
	done := e.done
	e.mu.Unlock()
	defer close(done)

	slog.Info("simulation engine started", "tick", e.Tick, "speed", e.Speed())

	for e.running.Load() {
		speed := e.Speed()
		if speed <= 0 {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()

		e.Step()

		// Sleep for the remainder of the tick interval, adjusted for speed.
		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / speed)
		if elapsed < target {
			time.Sleep(target - elapsed)
		}
	}

	slog.Info("simulation engine stopped", "tick", e.Tick)
}

// Stop halts the simulation loop and waits for the tick in flight to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopped = true
	e.running.Store(false)
	done := e.done
	e.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Step advances the simulation by one tick.
func (e *Engine) Step() {
	e.Tick++

	if e.OnTick != nil {
		e.OnTick(e.Tick)
	}
	if e.ReportInterval > 0 && e.Tick%e.ReportInterval == 0 && e.OnReport != nil {
		e.OnReport(e.Tick)
	}
	if e.SaveInterval > 0 && e.Tick%e.SaveInterval == 0 && e.OnSave != nil {
		e.OnSave(e.Tick)
	}
}
