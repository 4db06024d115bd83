package host

import (
	"errors"
	"sync"
)

// ErrActorClosed is returned for requests made after Close.
var ErrActorClosed = errors.New("host actor closed")

// Actor owns a Host and runs every call on a single goroutine, in request
// order. It implements Host itself so callers need not know about the queue.
type Actor struct {
	host Host
	reqs chan func()
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

// NewActor starts the goroutine serving h.
func NewActor(h Host) *Actor {
	a := &Actor{
		host: h,
		reqs: make(chan func()),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *Actor) loop() {
	defer close(a.done)
	for {
		select {
		case fn := <-a.reqs:
			fn()
		case <-a.quit:
			return
		}
	}
}

// Do runs fn against the host on the actor goroutine and waits for it.
func (a *Actor) Do(fn func(Host) error) error {
	result := make(chan error, 1)
	select {
	case a.reqs <- func() { result <- fn(a.host) }:
	case <-a.quit:
		return ErrActorClosed
	}
	return <-result
}

// Close stops the actor after the request in flight, if any.
func (a *Actor) Close() {
	a.once.Do(func() { close(a.quit) })
	<-a.done
}

func (a *Actor) TriggerExecution() error {
	return a.Do(func(h Host) error { return h.TriggerExecution() })
}

func (a *Actor) OnExecutionCompleted(fn func()) {
	if err := a.Do(func(h Host) error { h.OnExecutionCompleted(fn); return nil }); err != nil {
		logf("registering completion handler: %v", err)
	}
}

func (a *Actor) BindInput(name string) (Input, error) {
	var in Input
	err := a.Do(func(h Host) error {
		var err error
		in, err = h.BindInput(name)
		return err
	})
	return in, err
}

func (a *Actor) SetInput(name string, v Value) error {
	return a.Do(func(h Host) error { return h.SetInput(name, v) })
}

func (a *Actor) CaptureVisualSnapshot(path string) error {
	return a.Do(func(h Host) error { return h.CaptureVisualSnapshot(path) })
}

func (a *Actor) QueryNodeStates() ([]NodeState, error) {
	var states []NodeState
	err := a.Do(func(h Host) error {
		var err error
		states, err = h.QueryNodeStates()
		return err
	})
	return states, err
}

func (a *Actor) ExecutionMode() (ExecutionMode, error) {
	var mode ExecutionMode
	err := a.Do(func(h Host) error {
		var err error
		mode, err = h.ExecutionMode()
		return err
	})
	return mode, err
}

func (a *Actor) SetExecutionMode(mode ExecutionMode) error {
	return a.Do(func(h Host) error { return h.SetExecutionMode(mode) })
}
