package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/capturefinery/internal/capture"
	"github.com/banshee-data/capturefinery/internal/config"
	"github.com/banshee-data/capturefinery/internal/history"
	"github.com/banshee-data/capturefinery/internal/host"
	"github.com/banshee-data/capturefinery/internal/refinery"
)

// hostRequestTimeout bounds each HTTP request to a remote host. Snapshots of
// large canvases can take a while to render.
const hostRequestTimeout = 2 * time.Minute

type sweepFlags struct {
	studyFlags
	configPath string
	start      int
	count      int

	settle        time.Duration
	frameDelay    time.Duration
	cycleTimeout  time.Duration
	animationName string
	smallWidth    int
	tinyWidth     int
	sort          string
	captureErrors bool
	animations    bool
	loadExisting  bool
	historyDB     string
	hostFlags
}

// hostFlags pick the execution host: a remote one over HTTP or the built-in
// simulator.
type hostFlags struct {
	hostURL       string
	pollInterval  time.Duration
	simulate      bool
	simErrorEvery int
}

func (f *hostFlags) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.hostURL, "host-url", "", "Base URL of the execution host")
	fl.DurationVar(&f.pollInterval, "poll-interval", config.DefaultHostPollInterval, "Host status poll interval")
	fl.BoolVar(&f.simulate, "simulate", false, "Use the built-in simulated host instead of --host-url")
	fl.IntVar(&f.simErrorEvery, "sim-error-every", 0, "With --simulate, fail every Nth cycle")
}

// applyHost copies explicitly set host flags over cfg.
func (f *hostFlags) applyHost(cmd *cobra.Command, cfg *config.SweepConfig) {
	if cmd.Flags().Changed("host-url") {
		cfg.HostURL = &f.hostURL
	}
	if cmd.Flags().Changed("poll-interval") {
		d := f.pollInterval.String()
		cfg.HostPollInterval = &d
	}
}

// openHost returns the host to sweep hof against and a func releasing it.
func (f *hostFlags) openHost(cfg *config.SweepConfig, hof *refinery.HallOfFame, start int) (host.Host, func(), error) {
	if f.simulate {
		sample, _ := hof.Inputs(start)
		sim := host.NewSimHostFor(hof.Variables, sample)
		if f.simErrorEvery > 0 {
			sim.ErrorRule = host.ErrorEvery(f.simErrorEvery)
		}
		return sim, sim.Wait, nil
	}
	url := cfg.GetHostURL()
	if url == "" {
		return nil, nil, errors.New("no host: set --host-url, host_url in --config, or use --simulate")
	}
	client := host.NewClient(&http.Client{Timeout: hostRequestTimeout}, url)
	client.PollInterval = cfg.GetHostPollInterval()
	return client, client.Close, nil
}

func newSweepCmd() *cobra.Command {
	var f sweepFlags
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Replay a range of solutions through the host and capture each one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSweep(cmd, &f)
		},
	}
	f.bind(cmd)
	return cmd
}

func (f *sweepFlags) bind(cmd *cobra.Command) {
	f.register(cmd)
	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "Sweep config file (.json, .yaml or .yml)")
	fl.IntVar(&f.start, "start", 0, "First solution index")
	fl.IntVar(&f.count, "count", -1, "Number of solutions to replay (-1 for all from --start)")
	fl.DurationVar(&f.settle, "settle", config.DefaultSettleTime, "Pause after each cycle before capturing")
	fl.DurationVar(&f.frameDelay, "frame-delay", config.DefaultFrameDelay, "Animation frame delay")
	fl.DurationVar(&f.cycleTimeout, "cycle-timeout", config.DefaultCycleTimeout, "Give up on a cycle after this long (0 waits forever)")
	fl.StringVar(&f.animationName, "animation-name", config.DefaultAnimationName, "Animation file name root")
	fl.IntVar(&f.smallWidth, "small-width", config.DefaultSmallWidth, "Width of the -small animation")
	fl.IntVar(&f.tinyWidth, "tiny-width", config.DefaultTinyWidth, "Width of the -tiny animation")
	fl.StringVar(&f.sort, "sort", "", "Comma-separated playback sort chain (goals or variables)")
	fl.BoolVar(&f.captureErrors, "capture-errors", true, "Check node states and separate failed runs")
	fl.BoolVar(&f.animations, "animations", true, "Build animations after the sweep")
	fl.BoolVar(&f.loadExisting, "load-existing", false, "Add screenshots from earlier sweeps to the animations")
	fl.StringVar(&f.historyDB, "history-db", "", "Record the sweep in this sqlite database")
	f.hostFlags.bind(cmd)
}

// sweepConfig loads --config (if any) and applies explicitly set flags over it.
func sweepConfig(cmd *cobra.Command, f *sweepFlags) (*config.SweepConfig, error) {
	cfg := &config.SweepConfig{}
	if f.configPath != "" {
		loaded, err := config.LoadSweepConfig(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	changed := cmd.Flags().Changed
	setDuration := func(dst **string, d time.Duration) {
		s := d.String()
		*dst = &s
	}
	if changed("settle") {
		setDuration(&cfg.SettleTime, f.settle)
	}
	if changed("frame-delay") {
		setDuration(&cfg.FrameDelay, f.frameDelay)
	}
	if changed("cycle-timeout") {
		setDuration(&cfg.CycleTimeout, f.cycleTimeout)
	}
	if changed("animation-name") {
		cfg.AnimationName = &f.animationName
	}
	if changed("small-width") {
		cfg.SmallWidth = &f.smallWidth
	}
	if changed("tiny-width") {
		cfg.TinyWidth = &f.tinyWidth
	}
	if changed("sort") {
		cfg.Sort = &f.sort
	}
	if changed("capture-errors") {
		cfg.CaptureErrors = &f.captureErrors
	}
	if changed("animations") {
		cfg.CreateAnimations = &f.animations
	}
	if changed("load-existing") {
		cfg.LoadExistingImages = &f.loadExisting
	}
	if changed("history-db") {
		cfg.HistoryDB = &f.historyDB
	}
	f.applyHost(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

func runSweep(cmd *cobra.Command, f *sweepFlags) error {
	cfg, err := sweepConfig(cmd, f)
	if err != nil {
		return err
	}
	study, err := f.resolve()
	if err != nil {
		return err
	}
	hof, err := refinery.LoadHallOfFame(study.Folder)
	if err != nil {
		return err
	}
	count := f.count
	if count < 0 {
		count = hof.Len() - f.start
	}

	h, release, err := f.openHost(cfg, hof, f.start)
	if err != nil {
		return err
	}
	defer release()

	opts := capture.OptionsFromConfig(cfg)
	if path := cfg.GetHistoryDB(); path != "" {
		db, err := history.Open(path)
		if err != nil {
			return err
		}
		defer db.Close()
		opts.Recorder = history.NewStore(db)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch := capture.NewOrchestrator(h, opts)
	res, runErr := orch.Run(ctx, study, capture.RequestFromConfig(cfg, f.start, count))
	if res == nil {
		return runErr
	}
	printResult(cmd.OutOrStdout(), res)
	return runErr
}

func printResult(out io.Writer, res *capture.Result) {
	if res.Cancelled {
		fmt.Fprintf(out, "Sweep %s cancelled after %d rows; no animations written\n", res.SweepID, res.Completed)
	} else {
		fmt.Fprintf(out, "Sweep %s complete: %d rows, %d errors\n", res.SweepID, res.Completed, len(res.ErrorIndices))
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
	for _, a := range res.Animations {
		fmt.Fprintf(out, "Animation: %s\n", a)
	}
	if res.ErrorStudy != "" {
		fmt.Fprintf(out, "Error study: %s\n", res.ErrorStudy)
	}
	fmt.Fprintf(out, "Output: %s\n", res.OutputDir)
}
