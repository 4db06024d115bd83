// Package host defines the capability surface of the execution host a sweep
// drives, plus an actor that serialises access to it, an HTTP client for a
// remote host and a simulated in-process host.
package host

import (
	"errors"
	"strings"

	"github.com/banshee-data/capturefinery/internal/monitoring"
)

// ErrInputNotFound is returned by BindInput when the host has no input with
// the requested name.
var ErrInputNotFound = errors.New("input not found")

var logf = monitoring.Component("host")

// InputKind is the value type an input accepts.
type InputKind int

const (
	KindUnsupported InputKind = iota
	KindNumber
	KindInteger
	KindBoolean
	KindText
)

var kindNames = map[InputKind]string{
	KindUnsupported: "unsupported",
	KindNumber:      "number",
	KindInteger:     "integer",
	KindBoolean:     "boolean",
	KindText:        "text",
}

func (k InputKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unsupported"
}

// ParseInputKind maps a wire name to a kind. Unknown names are KindUnsupported.
func ParseInputKind(s string) InputKind {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k
		}
	}
	switch s {
	case "float", "double", "slider":
		return KindNumber
	case "int":
		return KindInteger
	case "bool", "toggle":
		return KindBoolean
	case "string", "panel":
		return KindText
	}
	return KindUnsupported
}

// Input describes a bound host input.
type Input struct {
	Name string    `json:"name"`
	Kind InputKind `json:"-"`
}

// NodeState is the runtime state of one node in the host's graph.
type NodeState string

const (
	NodeActive  NodeState = "active"
	NodeDead    NodeState = "dead"
	NodeWarning NodeState = "warning"
	NodeError   NodeState = "error"
)

// IsError reports whether the state marks a failed run. Only active and dead
// nodes count as healthy.
func (s NodeState) IsError() bool {
	switch NodeState(strings.ToLower(string(s))) {
	case NodeActive, NodeDead:
		return false
	}
	return true
}

// AnyError reports whether any state marks a failed run.
func AnyError(states []NodeState) bool {
	for _, s := range states {
		if s.IsError() {
			return true
		}
	}
	return false
}

// ExecutionMode controls whether the host re-executes on input changes.
type ExecutionMode string

const (
	ModeAutomatic ExecutionMode = "automatic"
	ModeManual    ExecutionMode = "manual"
)

// Host is the set of capabilities a sweep needs from the execution host.
// Implementations need not be safe for concurrent use; wrap them in an Actor.
type Host interface {
	// TriggerExecution starts one execution cycle and returns without
	// waiting for it to finish.
	TriggerExecution() error

	// OnExecutionCompleted registers the handler invoked when a cycle ends.
	// A nil handler clears it. The handler may run on any goroutine.
	OnExecutionCompleted(fn func())

	BindInput(name string) (Input, error)
	SetInput(name string, v Value) error

	// CaptureVisualSnapshot writes a JPEG of the current visual output to path.
	CaptureVisualSnapshot(path string) error

	QueryNodeStates() ([]NodeState, error)

	ExecutionMode() (ExecutionMode, error)
	SetExecutionMode(mode ExecutionMode) error
}
