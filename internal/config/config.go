// Package config provides configuration management for the editor.
// Values come from built-in defaults, then an optional YAML file named by
// LAMO_CONFIG, then LAMO_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lamoeditor/lamoeditor/internal/engine"
)

const (
	// Default values
	DefaultPort          = 8797
	DefaultLogLevel      = "info"
	DefaultDataDir       = ".lamoeditor"
	DefaultHistoryLimit  = 50
	DefaultProbeTimeout  = 30 * time.Second
	DefaultDoctorTimeout = 10 * time.Second
	DefaultDoctorTTL     = 10 * time.Minute

	// Environment variable names
	EnvConfigFile    = "LAMO_CONFIG"
	EnvPort          = "LAMO_PORT"
	EnvLogLevel      = "LAMO_LOG_LEVEL"
	EnvDataDir       = "LAMO_DATA_DIR"
	EnvFFmpegPath    = "LAMO_FFMPEG"
	EnvFFprobePath   = "LAMO_FFPROBE"
	EnvHistoryLimit  = "LAMO_HISTORY_LIMIT"
	EnvExportFormat  = "LAMO_EXPORT_FORMAT"
	EnvExportBitrate = "LAMO_EXPORT_BITRATE"
	EnvExportThreads = "LAMO_EXPORT_THREADS"
	EnvProbeTimeout  = "LAMO_PROBE_TIMEOUT"

	// Database filename
	DBFilename = "lamoeditor.db"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	WorkDir() string
	FFmpegPath() string
	FFprobePath() string
	ProbeTimeout() time.Duration
	DoctorTimeout() time.Duration
	DoctorTTL() time.Duration
	HistoryLimit() int
	ExportFormat() string
	ExportBitrate() string
	ExportThreads() int
}

// fileConfig mirrors the YAML file. Unset fields keep the defaults.
type fileConfig struct {
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	DataDir  string `yaml:"data_dir"`
	FFmpeg   struct {
		Path          string        `yaml:"path"`
		ProbePath     string        `yaml:"probe_path"`
		ProbeTimeout  time.Duration `yaml:"probe_timeout"`
		DoctorTimeout time.Duration `yaml:"doctor_timeout"`
		DoctorTTL     time.Duration `yaml:"doctor_ttl"`
	} `yaml:"ffmpeg"`
	History struct {
		Limit int `yaml:"limit"`
	} `yaml:"history"`
	Export struct {
		Format  string `yaml:"format"`
		Bitrate string `yaml:"bitrate"`
		Threads int    `yaml:"threads"`
	} `yaml:"export"`
}

// EnvConfig is the resolved configuration.
type EnvConfig struct {
	port          int
	logLevel      string
	dataDir       string
	ffmpegPath    string
	ffprobePath   string
	probeTimeout  time.Duration
	doctorTimeout time.Duration
	doctorTTL     time.Duration
	historyLimit  int
	exportFormat  string
	exportBitrate string
	exportThreads int
}

// New creates a new EnvConfig with defaults, file and environment overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:          DefaultPort,
		logLevel:      DefaultLogLevel,
		dataDir:       defaultDataDir(),
		probeTimeout:  DefaultProbeTimeout,
		doctorTimeout: DefaultDoctorTimeout,
		doctorTTL:     DefaultDoctorTTL,
		historyLimit:  DefaultHistoryLimit,
		exportFormat:  engine.DefaultFormat,
		exportBitrate: engine.DefaultBitrate,
		exportThreads: engine.DefaultThreads,
	}

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EnvConfig) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setInt(&c.port, f.Port)
	setString(&c.logLevel, f.LogLevel)
	setString(&c.dataDir, f.DataDir)
	setString(&c.ffmpegPath, f.FFmpeg.Path)
	setString(&c.ffprobePath, f.FFmpeg.ProbePath)
	setDuration(&c.probeTimeout, f.FFmpeg.ProbeTimeout)
	setDuration(&c.doctorTimeout, f.FFmpeg.DoctorTimeout)
	setDuration(&c.doctorTTL, f.FFmpeg.DoctorTTL)
	setInt(&c.historyLimit, f.History.Limit)
	setString(&c.exportFormat, f.Export.Format)
	setString(&c.exportBitrate, f.Export.Bitrate)
	setInt(&c.exportThreads, f.Export.Threads)
	return nil
}

func (c *EnvConfig) applyEnv() error {
	var err error
	if c.port, err = envInt(EnvPort, c.port); err != nil {
		return err
	}
	if c.historyLimit, err = envInt(EnvHistoryLimit, c.historyLimit); err != nil {
		return err
	}
	if c.exportThreads, err = envInt(EnvExportThreads, c.exportThreads); err != nil {
		return err
	}
	if v := os.Getenv(EnvProbeTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvProbeTimeout, err)
		}
		c.probeTimeout = d
	}

	setString(&c.logLevel, os.Getenv(EnvLogLevel))
	setString(&c.dataDir, os.Getenv(EnvDataDir))
	setString(&c.ffmpegPath, os.Getenv(EnvFFmpegPath))
	setString(&c.ffprobePath, os.Getenv(EnvFFprobePath))
	setString(&c.exportFormat, os.Getenv(EnvExportFormat))
	setString(&c.exportBitrate, os.Getenv(EnvExportBitrate))
	return nil
}

func (c *EnvConfig) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.port)
	}
	if c.historyLimit < 1 {
		return fmt.Errorf("invalid history limit %d: must be at least 1", c.historyLimit)
	}
	if c.exportThreads < 1 {
		return fmt.Errorf("invalid export threads %d: must be at least 1", c.exportThreads)
	}
	if c.probeTimeout <= 0 || c.doctorTimeout <= 0 || c.doctorTTL <= 0 {
		return errors.New("ffmpeg timeouts must be positive")
	}
	if _, err := engine.NewOutputSettings(c.exportFormat, c.exportBitrate, 0); err != nil {
		return fmt.Errorf("invalid export defaults: %w", err)
	}
	return nil
}

func envInt(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return n, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// WorkDir holds per-render scratch directories.
func (c *EnvConfig) WorkDir() string {
	return filepath.Join(c.dataDir, "work")
}

// FFmpegPath is empty when ffmpeg should be found on PATH.
func (c *EnvConfig) FFmpegPath() string  { return c.ffmpegPath }
func (c *EnvConfig) FFprobePath() string { return c.ffprobePath }

func (c *EnvConfig) ProbeTimeout() time.Duration  { return c.probeTimeout }
func (c *EnvConfig) DoctorTimeout() time.Duration { return c.doctorTimeout }
func (c *EnvConfig) DoctorTTL() time.Duration     { return c.doctorTTL }

// HistoryLimit is the number of undo steps kept.
func (c *EnvConfig) HistoryLimit() int { return c.historyLimit }

func (c *EnvConfig) ExportFormat() string  { return c.exportFormat }
func (c *EnvConfig) ExportBitrate() string { return c.exportBitrate }
func (c *EnvConfig) ExportThreads() int    { return c.exportThreads }

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
