// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/gparallel/lib/device"
	"github.com/bureau-foundation/gparallel/lib/hwinfo/nvidia"
	"github.com/bureau-foundation/gparallel/lib/job"
	"github.com/bureau-foundation/gparallel/lib/scheduler"
	"github.com/bureau-foundation/gparallel/lib/telemetry"
)

// EnvironmentVariable names the config file when --config is absent.
const EnvironmentVariable = "GPARALLEL_CONFIG"

// CompressionNames are the accepted compress_logs values.
var CompressionNames = []string{"", "none", "zstd", "lz4"}

// Config is the gparallel configuration. Zero durations in a file mean
// "not set" only for MaxRuntime, where zero disables the limit.
type Config struct {
	// Shell runs each command as `<shell> -c <command>`.
	Shell string `yaml:"shell" json:"shell"`

	// VisibilityVariable is read for the device inventory and set on
	// every job to the job's device id.
	VisibilityVariable string `yaml:"visibility_variable" json:"visibility_variable"`

	// LogLines is how many output lines are kept per job in memory.
	LogLines int `yaml:"log_lines" json:"log_lines"`

	TelemetryInterval Duration `yaml:"telemetry_interval" json:"telemetry_interval"`
	GracePeriod       Duration `yaml:"grace_period" json:"grace_period"`
	DrainTimeout      Duration `yaml:"drain_timeout" json:"drain_timeout"`
	MaxRuntime        Duration `yaml:"max_runtime" json:"max_runtime"`

	// WorkDir is the working directory of every job. Empty inherits
	// gparallel's own.
	WorkDir string `yaml:"work_dir" json:"work_dir"`

	// Journal, LogDir and History enable the optional on-disk records.
	Journal      string `yaml:"journal" json:"journal"`
	LogDir       string `yaml:"log_dir" json:"log_dir"`
	CompressLogs string `yaml:"compress_logs" json:"compress_logs"`
	History      string `yaml:"history" json:"history"`

	// SMIPath is the nvidia-smi binary used for listing devices and
	// reading memory.
	SMIPath string `yaml:"smi_path" json:"smi_path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Shell:              scheduler.DefaultShell,
		VisibilityVariable: device.DefaultVisibilityVariable,
		LogLines:           job.DefaultLineCapacity,
		TelemetryInterval:  Duration(telemetry.DefaultInterval),
		GracePeriod:        Duration(scheduler.DefaultGracePeriod),
		DrainTimeout:       Duration(scheduler.DefaultDrainTimeout),
		SMIPath:            nvidia.DefaultSMIPath,
	}
}

// Load loads path, or the file named by GPARALLEL_CONFIG when path is
// empty, or returns Default when neither is set. The returned config
// is expanded but not validated.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvironmentVariable)
	}
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads one file over the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := cfg.decode(path, data); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) decode(path string, data []byte) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	default:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} in path fields.
func (c *Config) expandVariables() {
	for _, field := range []*string{&c.Shell, &c.WorkDir, &c.Journal, &c.LogDir, &c.History, &c.SMIPath} {
		*field = expandVars(*field)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars replaces ${VAR} with the environment value and
// ${VAR:-default} with the value or, when unset or empty, default.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Shell) == "" {
		errs = append(errs, errors.New("shell is required"))
	}
	if c.VisibilityVariable == "" || strings.ContainsAny(c.VisibilityVariable, "= \t") {
		errs = append(errs, fmt.Errorf("visibility_variable %q is not a valid environment variable name", c.VisibilityVariable))
	}
	if c.LogLines <= 0 {
		errs = append(errs, fmt.Errorf("log_lines must be positive, got %d", c.LogLines))
	}
	if c.TelemetryInterval <= 0 {
		errs = append(errs, fmt.Errorf("telemetry_interval must be positive, got %s", c.TelemetryInterval))
	}
	if c.GracePeriod < 0 {
		errs = append(errs, fmt.Errorf("grace_period must not be negative, got %s", c.GracePeriod))
	}
	if c.DrainTimeout <= 0 {
		errs = append(errs, fmt.Errorf("drain_timeout must be positive, got %s", c.DrainTimeout))
	}
	if c.MaxRuntime < 0 {
		errs = append(errs, fmt.Errorf("max_runtime must not be negative, got %s", c.MaxRuntime))
	}
	if !slices.Contains(CompressionNames, strings.ToLower(c.CompressLogs)) {
		errs = append(errs, fmt.Errorf("compress_logs must be one of zstd, lz4 or none, got %q", c.CompressLogs))
	}
	if c.CompressLogs != "" && c.CompressLogs != "none" && c.LogDir == "" {
		errs = append(errs, errors.New("compress_logs requires log_dir"))
	}
	if c.WorkDir != "" {
		if info, err := os.Stat(c.WorkDir); err != nil {
			errs = append(errs, fmt.Errorf("work_dir: %w", err))
		} else if !info.IsDir() {
			errs = append(errs, fmt.Errorf("work_dir %s is not a directory", c.WorkDir))
		}
	}
	return errors.Join(errs...)
}

// Duration is a time.Duration written as a Go duration string ("2s",
// "1h30m") in both YAML and JSON.
type Duration time.Duration

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var text string
	if err := node.Decode(&text); err != nil {
		return err
	}
	return d.parse(text)
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("duration must be a string like \"2s\": %w", err)
	}
	return d.parse(text)
}

func (d *Duration) parse(text string) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}
