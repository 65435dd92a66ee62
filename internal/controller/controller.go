// Package controller implements the test controller: it owns the state of
// the current test, runs the measurement engine and saves the results.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/m-lab/httpspeed/pkg/client"
	"github.com/m-lab/httpspeed/pkg/speedtest/model"
	"github.com/m-lab/httpspeed/pkg/speedtest/spec"
)

// ErrTestInProgress is returned by Run when a test is already running.
var ErrTestInProgress = errors.New("test already in progress")

// State is the state of a Controller.
type State int

const (
	// Idle means no test is running. It is the initial state, and every
	// test goes back to it when done.
	Idle State = iota
	// Running means a test is in progress. The current step is in
	// Status.Step.
	Running
	// Completed means the test succeeded and its result has been saved.
	Completed
	// Failed means the test failed at Status.Step.
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is a snapshot of the Controller's state.
type Status struct {
	State State
	// Step is the current step while Running, and the last step reached
	// otherwise.
	Step spec.StepKind
	// LastResult is the result of the last successful test, if any.
	LastResult *model.TestResult
	// LastError is the error of the last failed test, if any.
	LastError error
}

// Engine runs a full test.
type Engine interface {
	RunFullTest(ctx context.Context) (model.TestResult, error)
}

// Store persists the history of results.
type Store interface {
	Load() (model.History, error)
	Append(r model.TestResult) (model.History, error)
}

// Controller runs one test at a time and keeps the results history.
type Controller struct {
	// onTransition, if set, is called after every state change.
	onTransition func(Status)

	engine Engine
	store  Store

	mu      sync.Mutex
	status  Status
	history model.History
}

// New returns a Controller in the Idle state. The history is loaded from
// store once here and then only written back after successful tests.
func New(engine Engine, store Store) *Controller {
	h, err := store.Load()
	if err != nil {
		log.Warn("cannot load history, starting from an empty one", "err", err)
	}
	return &Controller{
		engine:  engine,
		store:   store,
		history: h,
	}
}

// set replaces the current status and notifies onTransition.
func (c *Controller) set(s Status) {
	c.mu.Lock()
	prev := c.status
	c.status = s
	c.mu.Unlock()
	c.notify(prev, s)
}

func (c *Controller) notify(prev, s Status) {
	log.Debug("state transition", "from", prev.State, "to", s.State, "step", s.Step)
	if c.onTransition != nil {
		c.onTransition(s)
	}
}

// Status returns the current status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// History returns the results history, most recent first.
func (c *Controller) History() model.History {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append(model.History{}, c.history...)
}

// Advance moves a running test to the given step. It is a no-op unless a
// test is running.
func (c *Controller) Advance(kind spec.StepKind) {
	c.mu.Lock()
	if c.status.State != Running || c.status.Step == kind {
		c.mu.Unlock()
		return
	}
	prev := c.status
	c.status.Step = kind
	s := c.status
	c.mu.Unlock()
	c.notify(prev, s)
}

// Run runs a full test. It returns ErrTestInProgress if a test is already
// running. On success, the result is added to the history. On failure,
// nothing is saved and the engine's error is returned.
func (c *Controller) Run(ctx context.Context) (model.TestResult, error) {
	c.mu.Lock()
	if c.status.State != Idle {
		c.mu.Unlock()
		return model.TestResult{}, ErrTestInProgress
	}
	prev := c.status
	c.status = Status{
		State:      Running,
		Step:       spec.StepPing,
		LastResult: prev.LastResult,
	}
	s := c.status
	c.mu.Unlock()
	c.notify(prev, s)

	result, err := c.engine.RunFullTest(ctx)
	if err != nil {
		log.Error("test failed", "step", c.Status().Step, "err", err)
		c.finish(Failed, nil, err)
		return model.TestResult{}, err
	}

	h, err := c.store.Append(result)
	if err != nil {
		log.Error("cannot save result", "err", err)
		c.finish(Failed, nil, err)
		return result, fmt.Errorf("cannot save result: %w", err)
	}
	c.mu.Lock()
	c.history = h
	c.mu.Unlock()

	c.finish(Completed, &result, nil)
	return result, nil
}

// finish moves to the final state of a test, then back to Idle.
func (c *Controller) finish(state State, result *model.TestResult, err error) {
	s := c.Status()
	s.State = state
	s.LastError = err
	if result != nil {
		s.LastResult = result
	}
	c.set(s)
	s.State = Idle
	c.set(s)
}

// Emitter wraps a client.Emitter and advances the Controller when the
// engine starts a new step.
type Emitter struct {
	client.Emitter
	Controller *Controller
}

// OnStart advances the Controller, then calls the wrapped Emitter.
func (e *Emitter) OnStart(kind spec.StepKind) {
	if e.Controller != nil {
		e.Controller.Advance(kind)
	}
	e.Emitter.OnStart(kind)
}
