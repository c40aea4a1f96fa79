package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"golang.org/x/text/language"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSampling(); err != nil {
		return err
	}
	if err := c.validateDetection(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateSampling() error {
	interval := c.Sampling.IntervalSeconds
	if math.IsNaN(interval) || math.IsInf(interval, 0) || interval <= 0 {
		return errors.New("sampling.interval_seconds must be positive")
	}
	return nil
}

func (c *Config) validateDetection() error {
	threshold := c.Detection.Threshold
	if math.IsNaN(threshold) || threshold <= 0 || threshold >= 1 {
		return errors.New("detection.threshold must be strictly between 0 and 1")
	}
	switch c.Detection.Strategy {
	case StrategyStructural:
	case StrategyEmbedding:
		if c.Embedding.ModelPath == "" {
			return errors.New("embedding.model_path is required when detection.strategy is \"embedding\"")
		}
		if c.Embedding.ImageSize < minEmbeddingImageSize {
			return fmt.Errorf("embedding.image_size must be at least %d", minEmbeddingImageSize)
		}
	default:
		return fmt.Errorf("detection.strategy must be %q or %q, got %q", StrategyStructural, StrategyEmbedding, c.Detection.Strategy)
	}
	return nil
}

func (c *Config) validateWorkers() error {
	if c.Detection.Workers > maxWorkers {
		return fmt.Errorf("detection.workers must be at most %d", maxWorkers)
	}
	if c.Export.Workers > maxWorkers {
		return fmt.Errorf("export.workers must be at most %d", maxWorkers)
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if _, err := language.Parse(c.Transcription.Language); err != nil {
		return fmt.Errorf("transcription.language %q: %w", c.Transcription.Language, err)
	}
	return nil
}

func (c *Config) validateStorage() error {
	if !c.Storage.Enabled {
		return nil
	}
	if c.Storage.Endpoint == "" {
		return errors.New("storage.endpoint must be set when storage is enabled")
	}
	if c.Storage.Bucket == "" {
		return errors.New("storage.bucket must be set when storage is enabled")
	}
	if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
		return fmt.Errorf("storage credentials are required. Set %s and %s or edit the [storage] section", minioAccessKeyEnv, minioSecretKeyEnv)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not recognized", c.Logging.Level)
	}
}

// ValidateBinaryPaths reports configured binaries given as explicit paths that
// do not exist. Bare command names are resolved on PATH later.
func (c *Config) ValidateBinaryPaths() error {
	for _, candidate := range []string{c.Sampling.FFmpegBinary, c.Sampling.FFprobeBinary} {
		if !isExplicitPath(candidate) {
			continue
		}
		if _, err := os.Stat(candidate); err != nil {
			return fmt.Errorf("binary %q: %w", candidate, err)
		}
	}
	return nil
}

func isExplicitPath(value string) bool {
	for _, r := range value {
		if r == '/' || r == '\\' {
			return true
		}
	}
	return false
}
