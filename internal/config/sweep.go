package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by the Get* accessors when a field is unset.
const (
	DefaultSettleTime                     = 3 * time.Second
	DefaultFrameDelay                     = 100 * time.Millisecond
	DefaultAnimationName                  = "animation"
	DefaultSmallWidth                     = 1000
	DefaultTinyWidth                      = 500
	DefaultHostPollInterval               = 250 * time.Millisecond
	DefaultCycleTimeout     time.Duration = 0 // wait for every cycle
)

// maxConfigSize bounds config files read from disk.
const maxConfigSize = 1 * 1024 * 1024 // 1MB

// SweepConfig holds sweep settings. Every field is optional: nil means "use
// the default", so partial files are safe and CLI flags can override single
// values.
type SweepConfig struct {
	SettleTime         *string `json:"settle_time,omitempty" yaml:"settle_time,omitempty"` // duration string like "3s"
	FrameDelay         *string `json:"frame_delay,omitempty" yaml:"frame_delay,omitempty"`
	CycleTimeout       *string `json:"cycle_timeout,omitempty" yaml:"cycle_timeout,omitempty"`
	AnimationName      *string `json:"animation_name,omitempty" yaml:"animation_name,omitempty"`
	SmallWidth         *int    `json:"small_width,omitempty" yaml:"small_width,omitempty"`
	TinyWidth          *int    `json:"tiny_width,omitempty" yaml:"tiny_width,omitempty"`
	CaptureErrors      *bool   `json:"capture_errors,omitempty" yaml:"capture_errors,omitempty"`
	CreateAnimations   *bool   `json:"create_animations,omitempty" yaml:"create_animations,omitempty"`
	LoadExistingImages *bool   `json:"load_existing_images,omitempty" yaml:"load_existing_images,omitempty"`
	Sort               *string `json:"sort,omitempty" yaml:"sort,omitempty"` // comma-separated parameter names
	HistoryDB          *string `json:"history_db,omitempty" yaml:"history_db,omitempty"`
	HostURL            *string `json:"host_url,omitempty" yaml:"host_url,omitempty"`
	HostPollInterval   *string `json:"host_poll_interval,omitempty" yaml:"host_poll_interval,omitempty"`
}

func ptrBool(v bool) *bool       { return &v }
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// DefaultSweepConfig returns a config with every field set to its default.
func DefaultSweepConfig() *SweepConfig {
	return &SweepConfig{
		SettleTime:         ptrString(DefaultSettleTime.String()),
		FrameDelay:         ptrString(DefaultFrameDelay.String()),
		CycleTimeout:       ptrString(DefaultCycleTimeout.String()),
		AnimationName:      ptrString(DefaultAnimationName),
		SmallWidth:         ptrInt(DefaultSmallWidth),
		TinyWidth:          ptrInt(DefaultTinyWidth),
		CaptureErrors:      ptrBool(true),
		CreateAnimations:   ptrBool(true),
		LoadExistingImages: ptrBool(false),
		Sort:               ptrString(""),
		HistoryDB:          ptrString(""),
		HostURL:            ptrString(""),
		HostPollInterval:   ptrString(DefaultHostPollInterval.String()),
	}
}

// LoadSweepConfig reads a .json, .yaml or .yml config file. Omitted fields
// stay nil and fall back to defaults through the Get* accessors.
func LoadSweepConfig(path string) (*SweepConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &SweepConfig{}
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filepath.Base(cleanPath), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that set values are usable.
func (c *SweepConfig) Validate() error {
	for name, v := range map[string]*string{
		"settle_time":        c.SettleTime,
		"frame_delay":        c.FrameDelay,
		"cycle_timeout":      c.CycleTimeout,
		"host_poll_interval": c.HostPollInterval,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, *v)
		}
	}
	if c.FrameDelay != nil && *c.FrameDelay != "" {
		if d, _ := time.ParseDuration(*c.FrameDelay); d > 0 && d < 10*time.Millisecond {
			return fmt.Errorf("frame_delay must be at least 10ms, got %s", *c.FrameDelay)
		}
	}
	if c.SmallWidth != nil && *c.SmallWidth <= 0 {
		return fmt.Errorf("small_width must be positive, got %d", *c.SmallWidth)
	}
	if c.TinyWidth != nil && *c.TinyWidth <= 0 {
		return fmt.Errorf("tiny_width must be positive, got %d", *c.TinyWidth)
	}
	if c.AnimationName != nil && strings.ContainsAny(*c.AnimationName, `/\`) {
		return fmt.Errorf("animation_name must not contain path separators, got %q", *c.AnimationName)
	}
	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetSettleTime returns the pause between cycle completion and capture.
func (c *SweepConfig) GetSettleTime() time.Duration {
	return durationOr(c.SettleTime, DefaultSettleTime)
}

func (c *SweepConfig) GetFrameDelay() time.Duration {
	return durationOr(c.FrameDelay, DefaultFrameDelay)
}

// GetCycleTimeout bounds the wait for one execution cycle. Zero, the
// default, waits as long as the host needs.
func (c *SweepConfig) GetCycleTimeout() time.Duration {
	return durationOr(c.CycleTimeout, DefaultCycleTimeout)
}

func (c *SweepConfig) GetHostPollInterval() time.Duration {
	return durationOr(c.HostPollInterval, DefaultHostPollInterval)
}

func (c *SweepConfig) GetAnimationName() string {
	if c.AnimationName == nil || *c.AnimationName == "" {
		return DefaultAnimationName
	}
	return *c.AnimationName
}

func (c *SweepConfig) GetSmallWidth() int {
	if c.SmallWidth == nil {
		return DefaultSmallWidth
	}
	return *c.SmallWidth
}

func (c *SweepConfig) GetTinyWidth() int {
	if c.TinyWidth == nil {
		return DefaultTinyWidth
	}
	return *c.TinyWidth
}

func (c *SweepConfig) GetCaptureErrors() bool {
	if c.CaptureErrors == nil {
		return true
	}
	return *c.CaptureErrors
}

func (c *SweepConfig) GetCreateAnimations() bool {
	if c.CreateAnimations == nil {
		return true
	}
	return *c.CreateAnimations
}

func (c *SweepConfig) GetLoadExistingImages() bool {
	if c.LoadExistingImages == nil {
		return false
	}
	return *c.LoadExistingImages
}

// GetSort returns the sort chain as parameter names, dropping blanks.
func (c *SweepConfig) GetSort() []string {
	if c.Sort == nil {
		return nil
	}
	return SplitSort(*c.Sort)
}

// SplitSort splits a comma-separated sort chain, dropping blank entries.
func SplitSort(s string) []string {
	var names []string
	for _, n := range strings.Split(s, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}

func (c *SweepConfig) GetHistoryDB() string {
	if c.HistoryDB == nil {
		return ""
	}
	return *c.HistoryDB
}

func (c *SweepConfig) GetHostURL() string {
	if c.HostURL == nil {
		return ""
	}
	return *c.HostURL
}
