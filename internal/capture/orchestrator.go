// Package capture replays a study's hall of fame through an execution host,
// captures one screenshot per row and assembles the results into looping
// animations plus an error-only study.
package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/capturefinery/internal/animation"
	"github.com/banshee-data/capturefinery/internal/history"
	"github.com/banshee-data/capturefinery/internal/host"
	"github.com/banshee-data/capturefinery/internal/monitoring"
	"github.com/banshee-data/capturefinery/internal/ordering"
	"github.com/banshee-data/capturefinery/internal/refinery"
	"github.com/banshee-data/capturefinery/internal/security"
	"github.com/banshee-data/capturefinery/internal/timeutil"
)

var logf = monitoring.Component("sweep")

// Orchestrator runs sweeps against one host, one sweep at a time.
type Orchestrator struct {
	host    host.Host
	opts    Options
	clock   timeutil.Clock
	encoder *animation.Encoder

	escape atomic.Bool

	mu       sync.RWMutex
	state    State
	sweepID  string
	study    string
	done     int
	total    int
	warnings []string
}

// NewOrchestrator creates an orchestrator driving h.
func NewOrchestrator(h host.Host, opts Options) *Orchestrator {
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Orchestrator{
		host:    h,
		opts:    opts,
		clock:   clock,
		encoder: animation.NewEncoder(opts.FrameDelay),
		state:   StateIdle,
	}
}

// session holds the per-run buffers. It is owned by Run and dropped when Run
// returns.
type session struct {
	study   refinery.Study
	req     Request
	hof     *refinery.HallOfFame
	order   []int
	shotDir string

	clean        frameSet
	failed       frameSet
	errorIndices []int
	cancelled    bool
}

func (s *session) release() {
	s.clean = nil
	s.failed = nil
}

// Cancel asks the running sweep to stop before its next iteration. The cycle
// in flight completes first. Partial frames are discarded. Cancel while idle
// does nothing.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateIdle {
		return
	}
	o.escape.Store(true)
	if o.state == StateRunning {
		o.state = StateCancelling
	}
}

// Status returns the current lifecycle state.
func (o *Orchestrator) Status() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Progress returns the share of the requested rows completed, 0 to 100.
func (o *Orchestrator) Progress() float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return progress(o.done, o.total)
}

// Snapshot returns a copy of the current sweep state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Snapshot{
		State:     o.state,
		SweepID:   o.sweepID,
		Study:     o.study,
		Completed: o.done,
		Total:     o.total,
		Progress:  progress(o.done, o.total),
		Warnings:  append([]string(nil), o.warnings...),
	}
}

func progress(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	return 100 * float64(done) / float64(total)
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	if !(s == StateRunning && o.state == StateCancelling) {
		o.state = s
	}
	o.mu.Unlock()
}

// addWarning appends a warning message to the sweep state.
func (o *Orchestrator) addWarning(msg string) {
	logf("WARNING: %s", msg)
	o.mu.Lock()
	o.warnings = append(o.warnings, msg)
	o.mu.Unlock()
}

func (o *Orchestrator) stepDone() {
	o.mu.Lock()
	o.done++
	o.mu.Unlock()
}

// Run replays rows [req.Start, req.Start+req.Count) of the study's hall of
// fame. Loading and range checks happen before anything is touched. Row
// level problems become warnings on the result. When the sweep is cancelled
// (Cancel or ctx) no animations or error study are written and the returned
// result has Cancelled set. Finalization failures are returned alongside the
// result.
func (o *Orchestrator) Run(ctx context.Context, study refinery.Study, req Request) (*Result, error) {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return nil, ErrSweepActive
	}
	o.state = StateValidating
	o.escape.Store(false)
	o.sweepID = history.NewSweepID()
	o.study = study.Name
	o.done, o.total = 0, req.Count
	o.warnings = nil
	sweepID := o.sweepID
	o.mu.Unlock()
	defer o.setState(StateIdle)

	sess, err := o.validate(study, req)
	if err != nil {
		return nil, err
	}
	defer sess.release()

	startedAt := o.clock.Now()
	o.recordStart(sweepID, sess, startedAt)
	logf("Starting sweep %s on %s: rows %d..%d of %d", sweepID, study.Name, req.Start, req.Start+req.Count-1, sess.hof.Len())

	if err := os.MkdirAll(sess.shotDir, 0755); err != nil {
		err = fmt.Errorf("%w: creating %s: %w", refinery.ErrIO, sess.shotDir, err)
		o.recordComplete(sweepID, history.StatusFailed, err, sess, nil)
		return nil, err
	}

	actor := host.NewActor(o.host)
	defer actor.Close()

	if restore := o.switchToManual(actor); restore != nil {
		defer restore()
	}

	comp := &completion{}
	actor.OnExecutionCompleted(comp.fire)
	defer actor.OnExecutionCompleted(nil)

	inputs := bindInputs(actor, sess.hof.Variables, o.addWarning)

	o.setState(StateRunning)
	o.sweep(ctx, actor, comp, inputs, sess, sweepID)

	res := &Result{
		SweepID:   sweepID,
		OutputDir: sess.shotDir,
		Cancelled: sess.cancelled,
	}
	var finalErr error
	if sess.cancelled {
		logf("Sweep %s cancelled; discarding partial frames", sweepID)
	} else {
		o.setState(StateFinalizing)
		finalErr = o.finalize(sess, res)
	}

	o.mu.RLock()
	res.Completed = o.done
	res.Warnings = append([]string(nil), o.warnings...)
	o.mu.RUnlock()
	res.ErrorIndices = append([]int(nil), sess.errorIndices...)

	status := history.StatusComplete
	switch {
	case sess.cancelled:
		status = history.StatusCancelled
	case finalErr != nil:
		status = history.StatusFailed
	}
	o.recordComplete(sweepID, status, finalErr, sess, res)
	logf("Sweep %s %s: %d rows, %d errors, %d warnings", sweepID, status, res.Completed, len(res.ErrorIndices), len(res.Warnings))
	return res, finalErr
}

// validate loads the hall of fame and checks the request. It has no side effects.
func (o *Orchestrator) validate(study refinery.Study, req Request) (*session, error) {
	hof, err := refinery.LoadHallOfFame(study.Folder)
	if err != nil {
		if !errors.Is(err, refinery.ErrArchiveParse) {
			err = fmt.Errorf("%w: %w", refinery.ErrArchiveParse, err)
		}
		return nil, err
	}
	rows := hof.Len()
	switch {
	case req.Start < 0 || req.Start >= rows:
		return nil, fmt.Errorf("%w: start %d not in [0,%d)", ErrRange, req.Start, rows)
	case req.Count < 0 || req.Count > rows:
		return nil, fmt.Errorf("%w: count %d not in [0,%d]", ErrRange, req.Count, rows)
	case req.Start+req.Count > rows:
		return nil, fmt.Errorf("%w: start %d + count %d exceeds %d rows", ErrRange, req.Start, req.Count, rows)
	}
	order, err := ordering.ComputeOrder(hof, req.Sort)
	if err != nil {
		return nil, fmt.Errorf("sort chain: %w", err)
	}
	return &session{
		study:   study,
		req:     req,
		hof:     hof,
		order:   order,
		shotDir: study.ScreenshotDir(),
		clean:   make(frameSet),
		failed:  make(frameSet),
	}, nil
}

// switchToManual puts the host in manual mode and returns a func restoring the
// previous mode, or nil when the mode was not switched.
func (o *Orchestrator) switchToManual(h host.Host) func() {
	prev, err := h.ExecutionMode()
	if err != nil {
		o.addWarning(fmt.Sprintf("reading execution mode: %v", err))
		return nil
	}
	if err := h.SetExecutionMode(host.ModeManual); err != nil {
		o.addWarning(fmt.Sprintf("switching to manual execution: %v", err))
		return nil
	}
	return func() {
		if err := h.SetExecutionMode(prev); err != nil {
			o.addWarning(fmt.Sprintf("restoring execution mode %s: %v", prev, err))
		}
	}
}

// sweep runs the iteration loop. Escape is checked between iterations only.
func (o *Orchestrator) sweep(ctx context.Context, h host.Host, comp *completion, inputs inputMap, sess *session, sweepID string) {
	hof := sess.hof
	goals := len(hof.Goals)
	end := sess.req.Start + sess.req.Count

	for i := sess.req.Start; i < end; i++ {
		if o.escape.Load() || ctx.Err() != nil {
			o.setState(StateCancelling)
			sess.cancelled = true
			return
		}

		row, err := hof.Row(i)
		if err != nil {
			msg := fmt.Sprintf("row %d skipped: %v", i, err)
			o.addWarning(msg)
			o.recordIteration(sweepID, i, false, "", msg)
			o.stepDone()
			continue
		}
		logf("Row %d (%d/%d)", i, i-sess.req.Start+1, sess.req.Count)

		inputs.apply(h, i, hof.Variables, row, goals, o.addWarning)

		if !o.runCycle(h, comp, i) {
			o.recordIteration(sweepID, i, false, "", "execution cycle did not complete")
			o.stepDone()
			continue
		}
		if o.opts.SettleTime > 0 {
			o.clock.Sleep(o.opts.SettleTime)
		}

		isError := false
		if sess.req.CaptureErrors {
			states, err := h.QueryNodeStates()
			if err != nil {
				o.addWarning(fmt.Sprintf("row %d: querying node states: %v", i, err))
			} else if host.AnyError(states) {
				isError = true
				sess.errorIndices = append(sess.errorIndices, i)
			}
		}

		path := refinery.ScreenshotPath(sess.shotDir, i, isError)
		warning := ""
		if err := h.CaptureVisualSnapshot(path); err != nil {
			warning = fmt.Sprintf("row %d: capturing %s: %v", i, path, err)
			o.addWarning(warning)
		} else if img, err := loadJPEG(path); err != nil {
			warning = fmt.Sprintf("row %d: %v", i, err)
			o.addWarning(warning)
		} else if isError {
			sess.failed[i] = img
		} else {
			sess.clean[i] = img
		}
		o.recordIteration(sweepID, i, isError, path, warning)
		o.stepDone()
	}
}

// runCycle triggers one execution and blocks until the host reports it done.
func (o *Orchestrator) runCycle(h host.Host, comp *completion, i int) bool {
	done := comp.arm()
	if err := h.TriggerExecution(); err != nil {
		comp.disarm()
		o.addWarning(fmt.Sprintf("row %d: triggering execution: %v", i, err))
		return false
	}
	var timeout <-chan time.Time
	if o.opts.CycleTimeout > 0 {
		timeout = o.clock.After(o.opts.CycleTimeout)
	}
	select {
	case <-done:
		return true
	case <-timeout:
		if !comp.abandon() {
			return true
		}
		o.addWarning(fmt.Sprintf("row %d: execution did not complete within %s", i, o.opts.CycleTimeout))
		return false
	}
}

// finalize fills gaps from disk, writes animations and the error study.
func (o *Orchestrator) finalize(sess *session, res *Result) error {
	req := sess.req
	if req.LoadExistingImages && req.CreateAnimations {
		n := LoadExisting(sess.shotDir, sess.hof.Len(), req.Start, req.Count, req.CaptureErrors, sess.clean, sess.failed, o.addWarning)
		if n > 0 {
			logf("Loaded %d existing frames from %s", n, sess.shotDir)
		}
	}

	var errs []error
	if req.CreateAnimations {
		root := security.SanitizeFilename(o.animationName())
		variants := o.opts.variants()
		paths, err := o.encoder.EncodeSet(sess.clean, sess.order, sess.shotDir, root, variants)
		if err != nil {
			errs = append(errs, fmt.Errorf("clean animation: %w", err))
		}
		res.Animations = append(res.Animations, paths...)

		paths, err = o.encoder.EncodeSet(sess.failed, sess.order, sess.shotDir, root+refinery.ErrorStudySuffix, variants)
		if err != nil {
			errs = append(errs, fmt.Errorf("error animation: %w", err))
		}
		res.Animations = append(res.Animations, paths...)
	}

	if len(sess.errorIndices) > 0 {
		if sess.study.IsErrorStudy() {
			logf("%s is already an error study; not writing another", sess.study.Name)
		} else {
			dest := refinery.ErrorStudyFolder(sess.study.Folder)
			if err := refinery.WriteFilteredArchive(sess.study.ArchivePath(), dest, sess.errorIndices); err != nil {
				errs = append(errs, fmt.Errorf("error study: %w", err))
			} else {
				res.ErrorStudy = dest
				logf("Wrote error study %s with %d rows", dest, len(sess.errorIndices))
				if o.opts.StudiesChanged != nil {
					o.opts.StudiesChanged()
				}
			}
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) animationName() string {
	if o.opts.AnimationName == "" {
		return "animation"
	}
	return o.opts.AnimationName
}

func (o *Orchestrator) recordStart(sweepID string, sess *session, startedAt time.Time) {
	if o.opts.Recorder == nil {
		return
	}
	reqJSON, _ := json.Marshal(sess.req)
	err := o.opts.Recorder.SaveSweepStart(history.SweepRecord{
		SweepID:   sweepID,
		Study:     sess.study.Name,
		Folder:    sess.study.Folder,
		Start:     sess.req.Start,
		Count:     sess.req.Count,
		Status:    history.StatusRunning,
		Request:   reqJSON,
		StartedAt: startedAt,
	})
	if err != nil {
		o.addWarning(fmt.Sprintf("recording sweep start: %v", err))
	}
}

func (o *Orchestrator) recordIteration(sweepID string, i int, isError bool, path, warning string) {
	if o.opts.Recorder == nil {
		return
	}
	err := o.opts.Recorder.SaveIteration(history.IterationRecord{
		SweepID:    sweepID,
		Index:      i,
		IsError:    isError,
		Screenshot: path,
		Warning:    warning,
		RecordedAt: o.clock.Now(),
	})
	if err != nil {
		logf("WARNING: recording row %d: %v", i, err)
	}
}

func (o *Orchestrator) recordComplete(sweepID, status string, runErr error, sess *session, res *Result) {
	if o.opts.Recorder == nil {
		return
	}
	out := history.Outcome{
		Status:       status,
		ErrorIndices: sess.errorIndices,
		CompletedAt:  o.clock.Now(),
	}
	if runErr != nil {
		out.Error = runErr.Error()
	}
	if res != nil {
		out.Animations = res.Animations
		out.ErrorStudy = res.ErrorStudy
		out.Warnings = res.Warnings
	}
	if err := o.opts.Recorder.SaveSweepComplete(sweepID, out); err != nil {
		logf("WARNING: recording sweep completion: %v", err)
	}
}
