// Package config loads the JSON5 policy document that configures one engine
// invocation: jobserver limits, failure policy, and status observer display
// flags.
package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/flynn/json5"

	"github.com/jbohren-forks/catkin-tools/go/skerr"
)



// Duration is a time.Duration that marshals to/from Go duration strings
// ("5s", "1m30s") instead of an opaque integer of nanoseconds, so config
// files stay readable.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return skerr.Wrap(err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return skerr.Wrapf(err, "parsing duration %q", s)
	}
	d.Duration = parsed
	return nil
}

// Display holds the Status observer's rendering flags, mirroring §4.6.
type Display struct {
	ShowStageEvents    bool     `json:"show_stage_events"`
	ShowBufferedStdout bool     `json:"show_buffered_stdout"`
	ShowBufferedStderr bool     `json:"show_buffered_stderr"`
	ShowLiveStdout     bool     `json:"show_live_stdout"`
	ShowLiveStderr     bool     `json:"show_live_stderr"`
	ShowFullSummary    bool     `json:"show_full_summary"`
	TickRate           float64  `json:"tick_rate_hz"`
	ForceMode          string   `json:"force_mode"` // "", "interactive", "quiet"
}

// EngineConfig is the top-level document parsed from a JSON5 file.
type EngineConfig struct {
	MaxJobs             int     `json:"max_jobs"`
	MaxLoad             float64 `json:"max_load"`
	MaxMemPercent       float64 `json:"max_mem_percent"`
	ContinueOnFailure   bool    `json:"continue_on_failure"`
	ContinueWithoutDeps bool    `json:"continue_without_deps"`
	Display             Display `json:"display"`
}

// DefaultDisplay returns the Display flag set catkin_tools' console
// controller defaults to: buffered stderr shown, everything else off, and a
// 20Hz tick rate.
func DefaultDisplay() Display {
	return Display{
		ShowBufferedStderr: true,
		TickRate:           20.0,
	}
}

// ParseFile reads and parses a JSON5 config document at path into cfg.
func ParseFile(path string, cfg *EngineConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return skerr.Wrapf(err, "opening config file %s", path)
	}
	if err := json5.Unmarshal(data, cfg); err != nil {
		return skerr.Wrapf(err, "parsing config file %s", path)
	}
	return nil
}
