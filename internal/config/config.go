package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir string `toml:"work_dir"`
	LogDir  string `toml:"log_dir"`
}

// Sampling contains frame sampling settings.
type Sampling struct {
	IntervalSeconds float64 `toml:"interval_seconds"`
	FFmpegBinary    string  `toml:"ffmpeg_binary"`
	FFprobeBinary   string  `toml:"ffprobe_binary"`
}

// Detection contains scene boundary detection settings.
type Detection struct {
	// Strategy selects the frame comparator: "structural" or "embedding".
	Strategy string `toml:"strategy"`
	// Threshold is the dissimilarity (1 - similarity) above which a boundary
	// is placed. Must lie strictly between 0 and 1.
	Threshold float64 `toml:"threshold"`
	Workers   int     `toml:"workers"`
	// AnalysisWidth downsizes frames before structural comparison. 0 keeps
	// the sampled resolution.
	AnalysisWidth int `toml:"analysis_width"`
}

// Embedding contains the ONNX image encoder used by the embedding strategy.
type Embedding struct {
	ModelPath   string `toml:"model_path"`
	LibraryPath string `toml:"library_path"`
	InputName   string `toml:"input_name"`
	OutputName  string `toml:"output_name"`
	ImageSize   int    `toml:"image_size"`
}

// Export contains clip export settings.
type Export struct {
	Workers int `toml:"workers"`
}

// Transcription contains the external speech-to-text command settings.
type Transcription struct {
	Enabled  bool   `toml:"enabled"`
	Command  string `toml:"command"`
	Model    string `toml:"model"`
	Language string `toml:"language"`
}

// Storage contains the optional S3-compatible artifact mirror.
type Storage struct {
	Enabled   bool   `toml:"enabled"`
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
	Prefix    string `toml:"prefix"`
}

// Metrics contains the Prometheus endpoint settings.
type Metrics struct {
	Enabled bool   `toml:"enabled"`
	Bind    string `toml:"bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for vast.
//
// Configuration sections by subsystem:
//   - Paths: working and log directories
//   - Sampling: frame interval and ffmpeg binaries
//   - Detection: comparator strategy, threshold, worker count
//   - Embedding: ONNX model used by the embedding strategy
//   - Export: clip export concurrency
//   - Transcription: whisper command for subtitle generation
//   - Storage: S3-compatible artifact mirror
//   - Metrics: Prometheus endpoint
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Sampling      Sampling      `toml:"sampling"`
	Detection     Detection     `toml:"detection"`
	Embedding     Embedding     `toml:"embedding"`
	Export        Export        `toml:"export"`
	Transcription Transcription `toml:"transcription"`
	Storage       Storage       `toml:"storage"`
	Metrics       Metrics       `toml:"metrics"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vast.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the working and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RunsDBPath returns the location of the SQLite run history.
func (c *Config) RunsDBPath() string {
	return filepath.Join(c.Paths.LogDir, "runs.db")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
