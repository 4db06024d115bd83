package capture

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"image/gif"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/capturefinery/internal/animation"
	"github.com/banshee-data/capturefinery/internal/history"
	"github.com/banshee-data/capturefinery/internal/host"
	"github.com/banshee-data/capturefinery/internal/ordering"
	"github.com/banshee-data/capturefinery/internal/refinery"
	"github.com/banshee-data/capturefinery/internal/testutil"
	"github.com/banshee-data/capturefinery/internal/timeutil"
)

const settle = 3 * time.Second

var twoRows = testutil.Bridge.Rows

func writeStudy(t *testing.T, name string, rows [][]string) refinery.Study {
	t.Helper()
	fx := testutil.Bridge
	fx.Rows = rows
	return testutil.WriteStudy(t, filepath.Join(t.TempDir(), name), fx)
}

func newSim(rule host.ErrorRule) *host.SimHost {
	sim := host.NewSimHostFor([]string{"v1", "v2"}, []string{"1", "true"})
	sim.ErrorRule = rule
	return sim
}

// failOnV1 marks cycles where v1 equals n as failed.
func failOnV1(n int64) host.ErrorRule {
	return func(_ int, values map[string]host.Value) bool {
		return values["v1"].Integer == n
	}
}

func fullRequest(start, count int) Request {
	return Request{Start: start, Count: count, CaptureErrors: true, CreateAnimations: true}
}

func gifFrames(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	g, err := gif.DecodeAll(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 13, bytes.Index(data, animation.LoopExtension()), "%s loop block", path)
	return len(g.Image)
}

func writeJPEG(t *testing.T, path string, c color.Color) {
	testutil.WriteJPEG(t, path, 16, 12, c)
}

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()
	study := writeStudy(t, "bridge", twoRows)
	sim := newSim(failOnV1(2))
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	var changed atomic.Int32

	o := NewOrchestrator(sim, Options{
		Clock:          clock,
		SettleTime:     settle,
		StudiesChanged: func() { changed.Add(1) },
	})
	res, err := o.Run(context.Background(), study, fullRequest(0, 2))
	require.NoError(t, err)
	sim.Wait()

	assert.False(t, res.Cancelled)
	assert.Equal(t, 2, res.Completed)
	assert.Equal(t, []int{1}, res.ErrorIndices)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, study.ScreenshotDir(), res.OutputDir)
	assert.Equal(t, 2, sim.Runs())

	shots := study.ScreenshotDir()
	assert.FileExists(t, filepath.Join(shots, "0.jpg"))
	assert.FileExists(t, filepath.Join(shots, "1-error.jpg"))
	assert.NoFileExists(t, filepath.Join(shots, "1.jpg"))

	assert.Equal(t, 1, gifFrames(t, filepath.Join(shots, "animation.gif")))
	assert.Equal(t, 1, gifFrames(t, filepath.Join(shots, "animation-errors.gif")))
	for _, p := range animation.VariantPaths(shots, "animation", animation.DefaultVariants)[1:] {
		assert.FileExists(t, p)
	}
	for _, p := range animation.VariantPaths(shots, "animation-errors", animation.DefaultVariants)[1:] {
		assert.FileExists(t, p)
	}
	assert.Len(t, res.Animations, 6)

	// The error study holds only the failed row.
	assert.Equal(t, refinery.ErrorStudyFolder(study.Folder), res.ErrorStudy)
	hof, err := refinery.LoadHallOfFame(res.ErrorStudy)
	require.NoError(t, err)
	if diff := cmp.Diff([][]string{{"20", "2", "false"}}, hof.Solutions); diff != "" {
		t.Errorf("error study rows (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"v1", "v2"}, hof.Variables)
	assert.Equal(t, int32(1), changed.Load())

	// Settle delay ran once per row, on the injected clock.
	assert.Equal(t, []time.Duration{settle, settle}, clock.Sleeps())

	// Last row's inputs were applied with their kinds.
	values := sim.Values()
	assert.Equal(t, host.Value{Kind: host.KindInteger, Integer: 2}, values["v1"])
	assert.Equal(t, host.Value{Kind: host.KindBoolean, Bool: false}, values["v2"])

	mode, _ := sim.ExecutionMode()
	assert.Equal(t, host.ModeAutomatic, mode, "execution mode restored")
	assert.Equal(t, StateIdle, o.Status())
	assert.Equal(t, 100.0, o.Progress())
}

func TestRun_NoErrorsWritesNoErrorArtifacts(t *testing.T) {
	t.Parallel()
	study := writeStudy(t, "clean", twoRows)
	sim := newSim(nil)
	sim.Synchronous = true
	sim.ExtraNotifications = 2

	res, err := NewOrchestrator(sim, Options{}).Run(context.Background(), study, fullRequest(0, 2))
	require.NoError(t, err)

	assert.Empty(t, res.ErrorIndices)
	assert.Empty(t, res.ErrorStudy)
	assert.Equal(t, 2, gifFrames(t, filepath.Join(study.ScreenshotDir(), "animation.gif")))
	assert.NoFileExists(t, filepath.Join(study.ScreenshotDir(), "animation-errors.gif"))
	assert.NoDirExists(t, refinery.ErrorStudyFolder(study.Folder))
}

func TestRun_CaptureErrorsOffTreatsAllAsClean(t *testing.T) {
	t.Parallel()
	study := writeStudy(t, "nocheck", twoRows)
	sim := newSim(failOnV1(2))

	req := fullRequest(0, 2)
	req.CaptureErrors = false
	res, err := NewOrchestrator(sim, Options{}).Run(context.Background(), study, req)
	require.NoError(t, err)
	sim.Wait()

	assert.Empty(t, res.ErrorIndices)
	assert.FileExists(t, filepath.Join(study.ScreenshotDir(), "1.jpg"))
	assert.Equal(t, 2, gifFrames(t, filepath.Join(study.ScreenshotDir(), "animation.gif")))
}

func TestRun_ErrorStudyOfErrorStudy(t *testing.T) {
	t.Parallel()
	study := writeStudy(t, "bridge-errors", twoRows)
	sim := newSim(func(int, map[string]host.Value) bool { return true })

	res, err := NewOrchestrator(sim, Options{}).Run(context.Background(), study, fullRequest(0, 2))
	require.NoError(t, err)
	sim.Wait()

	assert.Equal(t, []int{0, 1}, res.ErrorIndices)
	assert.Empty(t, res.ErrorStudy)
	assert.NoDirExists(t, refinery.ErrorStudyFolder(study.Folder))
	assert.Equal(t, 2, gifFrames(t, filepath.Join(study.ScreenshotDir(), "animation-errors.gif")))
}

func TestRun_RangeValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name         string
		start, count int
	}{
		{"negative start", -1, 1},
		{"start at end", 2, 0},
		{"count too large", 0, 3},
		{"negative count", 0, -1},
		{"overrun", 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			study := writeStudy(t, "ranges", twoRows)
			sim := newSim(nil)
			o := NewOrchestrator(sim, Options{})

			_, err := o.Run(context.Background(), study, fullRequest(tt.start, tt.count))
			assert.ErrorIs(t, err, ErrRange)
			assert.Equal(t, 0, sim.Runs())
			assert.NoDirExists(t, study.ScreenshotDir(), "no side effects before validation passes")
			mode, _ := sim.ExecutionMode()
			assert.Equal(t, host.ModeAutomatic, mode)
			assert.Equal(t, StateIdle, o.Status())
		})
	}
}

func TestRun_ZeroCountIsValid(t *testing.T) {
	t.Parallel()
	study := writeStudy(t, "empty", twoRows)
	sim := newSim(nil)

	res, err := NewOrchestrator(sim, Options{}).Run(context.Background(), study, fullRequest(1, 0))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Completed)
	assert.Equal(t, 0, sim.Runs())
	assert.Empty(t, res.Animations)
}

func TestRun_ArchiveAndSortErrors(t *testing.T) {
	t.Parallel()
	missing := refinery.StudyFromFolder(filepath.Join(t.TempDir(), "missing"))
	_, err := NewOrchestrator(newSim(nil), Options{}).Run(context.Background(), missing, fullRequest(0, 1))
	assert.ErrorIs(t, err, refinery.ErrArchiveParse)

	study := writeStudy(t, "sorted", twoRows)
	req := fullRequest(0, 1)
	req.Sort = []string{"nope"}
	sim := newSim(nil)
	_, err = NewOrchestrator(sim, Options{}).Run(context.Background(), study, req)
	assert.ErrorIs(t, err, ordering.ErrUnknownParameter)
	assert.Equal(t, 0, sim.Runs())
}

// gateHost blocks each execution until released.
type gateHost struct {
	*host.SimHost
	entered chan struct{}
	release chan struct{}
}

func (g *gateHost) TriggerExecution() error {
	g.entered <- struct{}{}
	<-g.release
	return g.SimHost.TriggerExecution()
}

func TestRun_CancelDiscardsPartialFrames(t *testing.T) {
	t.Parallel()
	study := writeStudy(t, "cancel", twoRows)
	sim := newSim(func(int, map[string]host.Value) bool { return true })
	gate := &gateHost{SimHost: sim, entered: make(chan struct{}), release: make(chan struct{})}
	o := NewOrchestrator(gate, Options{})

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := o.Run(context.Background(), study, fullRequest(0, 2))
		done <- outcome{res, err}
	}()

	<-gate.entered
	assert.Equal(t, StateRunning, o.Status())
	mode, _ := sim.ExecutionMode()
	assert.Equal(t, host.ModeManual, mode)

	// A second sweep is refused while the first is active.
	_, err := o.Run(context.Background(), study, fullRequest(0, 1))
	assert.ErrorIs(t, err, ErrSweepActive)

	o.Cancel()
	assert.Equal(t, StateCancelling, o.Status())
	close(gate.release)

	out := <-done
	require.NoError(t, out.err)
	sim.Wait()
	assert.True(t, out.res.Cancelled)
	assert.Equal(t, 1, out.res.Completed, "in-flight row completes")
	assert.Equal(t, 1, sim.Runs())
	assert.Empty(t, out.res.Animations)
	assert.Empty(t, out.res.ErrorStudy)
	assert.NoFileExists(t, filepath.Join(study.ScreenshotDir(), "animation.gif"))
	assert.NoFileExists(t, filepath.Join(study.ScreenshotDir(), "animation-errors.gif"))
	assert.NoDirExists(t, refinery.ErrorStudyFolder(study.Folder))

	mode, _ = sim.ExecutionMode()
	assert.Equal(t, host.ModeAutomatic, mode, "mode restored after cancel")
	assert.Equal(t, StateIdle, o.Status())
}

func TestRun_ContextCancelStopsBeforeFirstRow(t *testing.T) {
	t.Parallel()
	study := writeStudy(t, "ctx", twoRows)
	sim := newSim(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewOrchestrator(sim, Options{}).Run(ctx, study, fullRequest(0, 2))
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Equal(t, 0, sim.Runs())
}

func TestCancel_OnlyWhileActive(t *testing.T) {
	t.Parallel()
	study := writeStudy(t, "early", twoRows)
	sim := newSim(nil)
	o := NewOrchestrator(sim, Options{})

	o.Cancel() // idle
	res, err := o.Run(context.Background(), study, fullRequest(0, 2))
	require.NoError(t, err)
	sim.Wait()
	assert.False(t, res.Cancelled, "cancel before the sweep started is ignored")
	assert.Equal(t, 2, sim.Runs())

	// A cancel landing while the request is still being validated holds.
	o.mu.Lock()
	o.state = StateValidating
	o.mu.Unlock()
	o.Cancel()
	assert.True(t, o.escape.Load())
	assert.Equal(t, StateValidating, o.Status())
}

func TestRun_InputWarnings(t *testing.T) {
	t.Parallel()
	study := writeStudy(t, "inputs", twoRows)
	sim := host.NewSimHost(map[string]host.InputKind{"v1": host.KindUnsupported})

	res, err := NewOrchestrator(sim, Options{}).Run(context.Background(), study, fullRequest(0, 2))
	require.NoError(t, err)
	sim.Wait()

	joined := strings.Join(res.Warnings, "\n")
	assert.Contains(t, joined, ErrUnresolvedInput.Error())
	assert.Contains(t, joined, ErrUnsupportedInputKind.Error())
	assert.Equal(t, 2, res.Completed, "sweep continues past input problems")
	assert.Empty(t, sim.Values())
	assert.Equal(t, 2, gifFrames(t, filepath.Join(study.ScreenshotDir(), "animation.gif")))
}

func TestRun_MalformedRowAndBadValue(t *testing.T) {
	t.Parallel()
	study := writeStudy(t, "rows", [][]string{{"1", "x", "true"}, {"2", "3"}, {"3", "4", "false"}})
	sim := newSim(nil)

	res, err := NewOrchestrator(sim, Options{}).Run(context.Background(), study, fullRequest(0, 3))
	require.NoError(t, err)
	sim.Wait()

	joined := strings.Join(res.Warnings, "\n")
	assert.Contains(t, joined, "row 1 skipped")
	assert.Contains(t, joined, `row 0: "v1"`)
	assert.Equal(t, 3, res.Completed)
	assert.Equal(t, 2, sim.Runs(), "malformed row is not executed")
	assert.Equal(t, 2, gifFrames(t, filepath.Join(study.ScreenshotDir(), "animation.gif")))
}

// brokenCamera fails every snapshot.
type brokenCamera struct{ *host.SimHost }

func (brokenCamera) CaptureVisualSnapshot(string) error { return errors.New("no viewport") }

func TestRun_CaptureFailureIsWarning(t *testing.T) {
	t.Parallel()
	study := writeStudy(t, "camera", twoRows)
	sim := newSim(nil)

	res, err := NewOrchestrator(brokenCamera{sim}, Options{}).Run(context.Background(), study, fullRequest(0, 2))
	require.NoError(t, err)
	sim.Wait()

	assert.Len(t, res.Warnings, 2)
	assert.Empty(t, res.Animations, "nothing captured, nothing encoded")
}

// silentHost never reports completion.
type silentHost struct{ *host.SimHost }

func (silentHost) OnExecutionCompleted(func()) {}

func TestRun_CycleTimeout(t *testing.T) {
	t.Parallel()
	study := writeStudy(t, "timeout", twoRows)
	sim := newSim(nil)

	res, err := NewOrchestrator(silentHost{sim}, Options{CycleTimeout: 20 * time.Millisecond}).
		Run(context.Background(), study, fullRequest(0, 2))
	require.NoError(t, err)

	assert.Len(t, res.Warnings, 2)
	assert.Contains(t, res.Warnings[0], "did not complete")
	assert.Equal(t, 2, res.Completed)
	assert.Empty(t, res.Animations)
}

// lateHost never reports its first cycle until a few milliseconds into the
// second one. The second cycle reports on its own only when completeSecond
// is set.
type lateHost struct {
	*host.SimHost
	completeSecond bool

	mu      sync.Mutex
	handler func()
	runs    int
	late    sync.WaitGroup
}

func (l *lateHost) OnExecutionCompleted(fn func()) {
	l.mu.Lock()
	l.handler = fn
	l.mu.Unlock()
}

func (l *lateHost) TriggerExecution() error {
	l.mu.Lock()
	l.runs++
	run, h := l.runs, l.handler
	l.mu.Unlock()
	if run != 2 || h == nil {
		return l.SimHost.TriggerExecution()
	}
	l.late.Add(1)
	go func() {
		defer l.late.Done()
		time.Sleep(5 * time.Millisecond)
		h() // owed by cycle 1
		if l.completeSecond {
			time.Sleep(45 * time.Millisecond)
			h()
		}
	}()
	return l.SimHost.TriggerExecution()
}

func TestRun_LateNotificationDoesNotCompleteNextCycle(t *testing.T) {
	t.Parallel()

	t.Run("next cycle still times out", func(t *testing.T) {
		study := writeStudy(t, "late", twoRows)
		lh := &lateHost{SimHost: newSim(nil)}

		res, err := NewOrchestrator(lh, Options{CycleTimeout: 200 * time.Millisecond}).
			Run(context.Background(), study, fullRequest(0, 2))
		require.NoError(t, err)
		lh.late.Wait()

		require.Len(t, res.Warnings, 2)
		assert.Contains(t, res.Warnings[0], "row 0: execution did not complete")
		assert.Contains(t, res.Warnings[1], "row 1: execution did not complete")
		assert.Empty(t, res.Animations)
		assert.NoFileExists(t, refinery.ScreenshotPath(study.ScreenshotDir(), 1, false))
	})

	t.Run("next cycle completes on its own notification", func(t *testing.T) {
		study := writeStudy(t, "late-ok", twoRows)
		lh := &lateHost{SimHost: newSim(nil), completeSecond: true}

		res, err := NewOrchestrator(lh, Options{CycleTimeout: 200 * time.Millisecond}).
			Run(context.Background(), study, fullRequest(0, 2))
		require.NoError(t, err)
		lh.late.Wait()

		require.Len(t, res.Warnings, 1)
		assert.Contains(t, res.Warnings[0], "row 0")
		assert.FileExists(t, refinery.ScreenshotPath(study.ScreenshotDir(), 1, false))
		assert.Equal(t, 1, gifFrames(t, filepath.Join(study.ScreenshotDir(), "animation.gif")))
	})
}

func TestRun_LoadExistingImages(t *testing.T) {
	t.Parallel()
	rows := [][]string{{"1", "1", "true"}, {"2", "2", "true"}, {"3", "3", "true"}}

	t.Run("error frames split", func(t *testing.T) {
		study := writeStudy(t, "existing", rows)
		writeJPEG(t, refinery.ScreenshotPath(study.ScreenshotDir(), 0, false), color.White)
		writeJPEG(t, refinery.ScreenshotPath(study.ScreenshotDir(), 2, true), color.Black)

		req := fullRequest(1, 1)
		req.LoadExistingImages = true
		sim := newSim(nil)
		_, err := NewOrchestrator(sim, Options{}).Run(context.Background(), study, req)
		require.NoError(t, err)
		sim.Wait()

		assert.Equal(t, 2, gifFrames(t, filepath.Join(study.ScreenshotDir(), "animation.gif")))
		assert.Equal(t, 1, gifFrames(t, filepath.Join(study.ScreenshotDir(), "animation-errors.gif")))
	})

	t.Run("error frames merged when not capturing errors", func(t *testing.T) {
		study := writeStudy(t, "merged", rows)
		writeJPEG(t, refinery.ScreenshotPath(study.ScreenshotDir(), 0, false), color.White)
		writeJPEG(t, refinery.ScreenshotPath(study.ScreenshotDir(), 2, true), color.Black)

		req := fullRequest(1, 1)
		req.LoadExistingImages = true
		req.CaptureErrors = false
		sim := newSim(nil)
		_, err := NewOrchestrator(sim, Options{}).Run(context.Background(), study, req)
		require.NoError(t, err)
		sim.Wait()

		assert.Equal(t, 3, gifFrames(t, filepath.Join(study.ScreenshotDir(), "animation.gif")))
		assert.NoFileExists(t, filepath.Join(study.ScreenshotDir(), "animation-errors.gif"))
	})

	t.Run("clean frame wins over error frame", func(t *testing.T) {
		study := writeStudy(t, "rerun", rows)
		dir := study.ScreenshotDir()
		writeJPEG(t, refinery.ScreenshotPath(dir, 0, false), color.White)
		writeJPEG(t, refinery.ScreenshotPath(dir, 0, true), color.Black)

		clean, failed := frameSet{}, frameSet{}
		n := LoadExisting(dir, 3, 1, 1, true, clean, failed, func(msg string) { t.Error(msg) })
		assert.Equal(t, 1, n)
		assert.Contains(t, clean, 0)
		assert.NotContains(t, failed, 0)

		req := fullRequest(1, 1)
		req.LoadExistingImages = true
		sim := newSim(nil)
		_, err := NewOrchestrator(sim, Options{}).Run(context.Background(), study, req)
		require.NoError(t, err)
		sim.Wait()

		assert.Equal(t, 2, gifFrames(t, filepath.Join(dir, "animation.gif")))
		assert.NoFileExists(t, filepath.Join(dir, "animation-errors.gif"))
	})

	t.Run("ignored without the flag", func(t *testing.T) {
		study := writeStudy(t, "fresh", rows)
		writeJPEG(t, refinery.ScreenshotPath(study.ScreenshotDir(), 0, false), color.White)

		sim := newSim(nil)
		_, err := NewOrchestrator(sim, Options{}).Run(context.Background(), study, fullRequest(1, 1))
		require.NoError(t, err)
		sim.Wait()

		assert.Equal(t, 1, gifFrames(t, filepath.Join(study.ScreenshotDir(), "animation.gif")))
	})
}

func TestRun_NoAnimationsFlag(t *testing.T) {
	t.Parallel()
	study := writeStudy(t, "still", twoRows)
	sim := newSim(failOnV1(1))

	req := fullRequest(0, 2)
	req.CreateAnimations = false
	res, err := NewOrchestrator(sim, Options{}).Run(context.Background(), study, req)
	require.NoError(t, err)
	sim.Wait()

	assert.Empty(t, res.Animations)
	assert.NoFileExists(t, filepath.Join(study.ScreenshotDir(), "animation.gif"))
	assert.Equal(t, refinery.ErrorStudyFolder(study.Folder), res.ErrorStudy, "error study does not depend on animations")
}

func TestRun_CustomAnimationNameAndSort(t *testing.T) {
	t.Parallel()
	rows := [][]string{{"30", "1", "true"}, {"10", "2", "true"}, {"20", "3", "true"}}
	study := writeStudy(t, "named", rows)
	sim := newSim(nil)
	sim.Synchronous = true

	req := fullRequest(0, 3)
	req.Sort = []string{"g1"}
	res, err := NewOrchestrator(sim, Options{AnimationName: "my run", SmallWidth: 32, TinyWidth: 16}).
		Run(context.Background(), study, req)
	require.NoError(t, err)

	shots := study.ScreenshotDir()
	assert.Contains(t, res.Animations, filepath.Join(shots, "my_run.gif"))
	assert.Equal(t, 3, gifFrames(t, filepath.Join(shots, "my_run-small.gif")))

	data, err := os.ReadFile(filepath.Join(shots, "my_run-tiny.gif"))
	require.NoError(t, err)
	cfg, err := gif.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Width)
}

func TestRun_RecordsHistory(t *testing.T) {
	t.Parallel()
	db, err := history.Open(history.MemoryPath)
	require.NoError(t, err)
	defer db.Close()
	store := history.NewStore(db)

	study := writeStudy(t, "recorded", twoRows)
	sim := newSim(failOnV1(2))
	res, err := NewOrchestrator(sim, Options{Recorder: store}).Run(context.Background(), study, fullRequest(0, 2))
	require.NoError(t, err)
	sim.Wait()

	rec, err := store.GetSweep(res.SweepID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, history.StatusComplete, rec.Status)
	assert.Equal(t, []int{1}, rec.ErrorIndices)
	assert.Equal(t, res.ErrorStudy, rec.ErrorStudy)
	assert.NotNil(t, rec.CompletedAt)

	its, err := store.Iterations(res.SweepID)
	require.NoError(t, err)
	require.Len(t, its, 2)
	assert.False(t, its[0].IsError)
	assert.True(t, its[1].IsError)
}

func TestCompletion_OneShot(t *testing.T) {
	t.Parallel()
	var c completion
	c.fire() // nothing armed

	ch := c.arm()
	c.fire()
	c.fire()
	select {
	case <-ch:
	default:
		t.Fatal("armed channel not closed")
	}

	ch = c.arm()
	select {
	case <-ch:
		t.Fatal("new cycle fired by stale notification")
	default:
	}
}

func TestCompletion_AbandonedCycleOwesOneNotification(t *testing.T) {
	t.Parallel()
	var c completion
	c.arm()
	require.True(t, c.abandon())

	ch := c.arm()
	c.fire() // late notification from the abandoned cycle
	select {
	case <-ch:
		t.Fatal("abandoned cycle's notification completed the next cycle")
	default:
	}
	c.fire()
	select {
	case <-ch:
	default:
		t.Fatal("next cycle not completed by its own notification")
	}

	c.arm()
	c.fire()
	assert.False(t, c.abandon(), "a fired cycle is not abandoned")
}
