package host

import (
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// ErrorRule decides whether the cycle numbered run (1-based) with the given
// input values ends with a node in error.
type ErrorRule func(run int, values map[string]Value) bool

// ErrorEvery returns a rule failing every n-th cycle. n <= 0 never fails.
func ErrorEvery(n int) ErrorRule {
	return func(run int, _ map[string]Value) bool {
		return n > 0 && run%n == 0
	}
}

// SimHost is an in-process Host. Each cycle renders a solid colour derived
// from the current input values; an optional rule flags cycles as failed.
type SimHost struct {
	Width, Height int
	ErrorRule     ErrorRule

	// Synchronous runs the completion handler inside TriggerExecution
	// instead of on a new goroutine.
	Synchronous bool
	// ExtraNotifications fires the handler this many additional times per
	// cycle, like hosts that report completion more than once.
	ExtraNotifications int

	mu       sync.Mutex
	kinds    map[string]InputKind
	values   map[string]Value
	mode     ExecutionMode
	handler  func()
	runs     int
	failed   bool
	rendered color.RGBA
	pending  sync.WaitGroup
}

// NewSimHost creates a host with the given declared inputs.
func NewSimHost(inputs map[string]InputKind) *SimHost {
	kinds := make(map[string]InputKind, len(inputs))
	for k, v := range inputs {
		kinds[k] = v
	}
	return &SimHost{
		Width:  64,
		Height: 48,
		kinds:  kinds,
		values: make(map[string]Value),
		mode:   ModeAutomatic,
	}
}

// NewSimHostFor declares one input per variable, inferring each kind from the
// matching sample value.
func NewSimHostFor(variables, sample []string) *SimHost {
	inputs := make(map[string]InputKind, len(variables))
	for i, name := range variables {
		kind := KindNumber
		if i < len(sample) {
			kind = InferKind(sample[i])
		}
		inputs[name] = kind
	}
	return NewSimHost(inputs)
}

func (s *SimHost) TriggerExecution() error {
	s.mu.Lock()
	s.runs++
	run := s.runs
	s.rendered = colourFor(s.values)
	s.failed = s.ErrorRule != nil && s.ErrorRule(run, s.copyValues())
	h := s.handler
	notify := 1 + s.ExtraNotifications
	inline := s.Synchronous
	s.mu.Unlock()

	if h == nil {
		return nil
	}
	if inline {
		for i := 0; i < notify; i++ {
			h()
		}
		return nil
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		for i := 0; i < notify; i++ {
			h()
		}
	}()
	return nil
}

func (s *SimHost) OnExecutionCompleted(fn func()) {
	s.mu.Lock()
	s.handler = fn
	s.mu.Unlock()
}

func (s *SimHost) BindInput(name string) (Input, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kind, ok := s.kinds[name]
	if !ok {
		return Input{}, fmt.Errorf("%w: %q", ErrInputNotFound, name)
	}
	return Input{Name: name, Kind: kind}, nil
}

func (s *SimHost) SetInput(name string, v Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kind, ok := s.kinds[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrInputNotFound, name)
	}
	if v.Kind != kind {
		return fmt.Errorf("input %q holds %s, got %s", name, kind, v.Kind)
	}
	s.values[name] = v
	return nil
}

// CaptureVisualSnapshot writes the colour of the last cycle as a JPEG.
func (s *SimHost) CaptureVisualSnapshot(path string) error {
	s.mu.Lock()
	c, w, h := s.rendered, s.Width, s.Height
	s.mu.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *SimHost) QueryNodeStates() ([]NodeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	states := []NodeState{NodeActive, NodeDead}
	if s.failed {
		states = append(states, NodeError)
	}
	return states, nil
}

func (s *SimHost) ExecutionMode() (ExecutionMode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode, nil
}

func (s *SimHost) SetExecutionMode(mode ExecutionMode) error {
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
	return nil
}

// Runs returns the number of cycles triggered so far.
func (s *SimHost) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// Values returns a copy of the current input values.
func (s *SimHost) Values() map[string]Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyValues()
}

// Wait blocks until asynchronous completion notifications have been delivered.
func (s *SimHost) Wait() { s.pending.Wait() }

func (s *SimHost) copyValues() map[string]Value {
	out := make(map[string]Value, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// colourFor hashes the input values into a stable colour.
func colourFor(values map[string]Value) color.RGBA {
	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	sort.Strings(names)
	h := fnv.New32a()
	for _, k := range names {
		fmt.Fprintf(h, "%s=%s;", k, values[k])
	}
	sum := h.Sum32()
	return color.RGBA{R: uint8(sum >> 16), G: uint8(sum >> 8), B: uint8(sum), A: 255}
}
