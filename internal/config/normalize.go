package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSampling()
	c.normalizeDetection()
	if err := c.normalizeEmbedding(); err != nil {
		return err
	}
	if c.Export.Workers <= 0 {
		c.Export.Workers = defaultExportWorkers
	}
	c.normalizeTranscription()
	c.normalizeStorage()
	c.Metrics.Bind = strings.TrimSpace(c.Metrics.Bind)
	if c.Metrics.Bind == "" {
		c.Metrics.Bind = defaultMetricsBind
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSampling() {
	c.Sampling.FFmpegBinary = strings.TrimSpace(c.Sampling.FFmpegBinary)
	if c.Sampling.FFmpegBinary == "" {
		c.Sampling.FFmpegBinary = defaultFFmpegBinary
	}
	c.Sampling.FFprobeBinary = strings.TrimSpace(c.Sampling.FFprobeBinary)
	if c.Sampling.FFprobeBinary == "" {
		c.Sampling.FFprobeBinary = defaultFFprobeBinary
	}
}

func (c *Config) normalizeDetection() {
	c.Detection.Strategy = strings.ToLower(strings.TrimSpace(c.Detection.Strategy))
	if c.Detection.Strategy == "" {
		c.Detection.Strategy = defaultDetectionStrategy
	}
	if c.Detection.Workers <= 0 {
		c.Detection.Workers = defaultDetectionWorkers
	}
	if c.Detection.AnalysisWidth < 0 {
		c.Detection.AnalysisWidth = 0
	}
}

func (c *Config) normalizeEmbedding() error {
	var err error
	if c.Embedding.ModelPath != "" {
		if c.Embedding.ModelPath, err = expandPath(c.Embedding.ModelPath); err != nil {
			return fmt.Errorf("embedding.model_path: %w", err)
		}
	}
	if strings.TrimSpace(c.Embedding.LibraryPath) == "" {
		if value, ok := os.LookupEnv(onnxRuntimeLibraryEnv); ok {
			c.Embedding.LibraryPath = strings.TrimSpace(value)
		}
	}
	if c.Embedding.LibraryPath != "" {
		if c.Embedding.LibraryPath, err = expandPath(c.Embedding.LibraryPath); err != nil {
			return fmt.Errorf("embedding.library_path: %w", err)
		}
	}
	c.Embedding.InputName = strings.TrimSpace(c.Embedding.InputName)
	if c.Embedding.InputName == "" {
		c.Embedding.InputName = defaultEmbeddingInputName
	}
	c.Embedding.OutputName = strings.TrimSpace(c.Embedding.OutputName)
	if c.Embedding.OutputName == "" {
		c.Embedding.OutputName = defaultEmbeddingOutputName
	}
	if c.Embedding.ImageSize == 0 {
		c.Embedding.ImageSize = defaultEmbeddingImageSize
	}
	return nil
}

func (c *Config) normalizeTranscription() {
	c.Transcription.Command = strings.TrimSpace(c.Transcription.Command)
	if c.Transcription.Command == "" {
		c.Transcription.Command = defaultTranscriptionCommand
	}
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultTranscriptionModel
	}
	c.Transcription.Language = strings.ToLower(strings.TrimSpace(c.Transcription.Language))
	if c.Transcription.Language == "" {
		c.Transcription.Language = defaultTranscriptionLanguage
	}
}

func (c *Config) normalizeStorage() {
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	c.Storage.Prefix = strings.Trim(strings.TrimSpace(c.Storage.Prefix), "/")
	if c.Storage.AccessKey == "" {
		if value, ok := os.LookupEnv(minioAccessKeyEnv); ok {
			c.Storage.AccessKey = strings.TrimSpace(value)
		}
	}
	if c.Storage.SecretKey == "" {
		if value, ok := os.LookupEnv(minioSecretKeyEnv); ok {
			c.Storage.SecretKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
