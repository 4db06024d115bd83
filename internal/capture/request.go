package capture

import (
	"time"

	"github.com/banshee-data/capturefinery/internal/animation"
	"github.com/banshee-data/capturefinery/internal/config"
	"github.com/banshee-data/capturefinery/internal/history"
	"github.com/banshee-data/capturefinery/internal/timeutil"
)

// Request describes one sweep over a study's hall of fame.
type Request struct {
	Start              int      `json:"start"`
	Count              int      `json:"count"`
	CaptureErrors      bool     `json:"capture_errors"`
	CreateAnimations   bool     `json:"create_animations"`
	LoadExistingImages bool     `json:"load_existing_images"`
	Sort               []string `json:"sort,omitempty"`
}

// RequestFromConfig builds a request for [start,start+count) with flags and
// sort chain taken from cfg.
func RequestFromConfig(cfg *config.SweepConfig, start, count int) Request {
	return Request{
		Start:              start,
		Count:              count,
		CaptureErrors:      cfg.GetCaptureErrors(),
		CreateAnimations:   cfg.GetCreateAnimations(),
		LoadExistingImages: cfg.GetLoadExistingImages(),
		Sort:               cfg.GetSort(),
	}
}

// Result reports what a sweep produced.
type Result struct {
	SweepID      string   `json:"sweep_id"`
	OutputDir    string   `json:"output_dir"`
	Completed    int      `json:"completed"`
	Cancelled    bool     `json:"cancelled"`
	ErrorIndices []int    `json:"error_indices,omitempty"`
	Animations   []string `json:"animations,omitempty"`
	ErrorStudy   string   `json:"error_study,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

// Recorder persists sweep progress. history.Store implements it.
type Recorder interface {
	SaveSweepStart(rec history.SweepRecord) error
	SaveIteration(it history.IterationRecord) error
	SaveSweepComplete(sweepID string, out history.Outcome) error
}

// Options configure an Orchestrator.
type Options struct {
	Clock timeutil.Clock

	// SettleTime is the pause after each cycle completes, before capture.
	SettleTime time.Duration
	// CycleTimeout bounds the wait for a cycle to complete; zero waits forever.
	CycleTimeout time.Duration

	FrameDelay    time.Duration
	AnimationName string
	SmallWidth    int
	TinyWidth     int

	Recorder Recorder

	// StudiesChanged is called after an error study has been written.
	StudiesChanged func()
}

// OptionsFromConfig maps config values onto Options.
func OptionsFromConfig(cfg *config.SweepConfig) Options {
	return Options{
		SettleTime:    cfg.GetSettleTime(),
		CycleTimeout:  cfg.GetCycleTimeout(),
		FrameDelay:    cfg.GetFrameDelay(),
		AnimationName: cfg.GetAnimationName(),
		SmallWidth:    cfg.GetSmallWidth(),
		TinyWidth:     cfg.GetTinyWidth(),
	}
}

func (o Options) variants() []animation.Variant {
	return animation.Variants(o.SmallWidth, o.TinyWidth)
}
