package config

const (
	defaultConfigPath             = "~/.config/vast/config.toml"
	defaultWorkDir                = "~/.local/share/vast/runs"
	defaultLogDir                 = "~/.local/share/vast/logs"
	defaultSamplingInterval       = 2.0
	defaultFFmpegBinary           = "ffmpeg"
	defaultFFprobeBinary          = "ffprobe"
	defaultDetectionStrategy      = "structural"
	defaultDetectionThreshold     = 0.6
	defaultDetectionWorkers       = 4
	defaultEmbeddingInputName     = "pixel_values"
	defaultEmbeddingOutputName    = "image_embeds"
	defaultEmbeddingImageSize     = 224
	defaultExportWorkers          = 2
	defaultTranscriptionCommand   = "whisper"
	defaultTranscriptionModel     = "small"
	defaultTranscriptionLanguage  = "en"
	defaultStoragePrefix          = "vast"
	defaultMetricsBind            = "127.0.0.1:9464"
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	minioAccessKeyEnv             = "VAST_MINIO_ACCESS_KEY"
	minioSecretKeyEnv             = "VAST_MINIO_SECRET_KEY"
	onnxRuntimeLibraryEnv         = "ONNXRUNTIME_LIB"
	maxWorkers                    = 64
	minEmbeddingImageSize         = 32
)

// Detection strategy names accepted in [detection].strategy.
const (
	StrategyStructural = "structural"
	StrategyEmbedding  = "embedding"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir: defaultWorkDir,
			LogDir:  defaultLogDir,
		},
		Sampling: Sampling{
			IntervalSeconds: defaultSamplingInterval,
			FFmpegBinary:    defaultFFmpegBinary,
			FFprobeBinary:   defaultFFprobeBinary,
		},
		Detection: Detection{
			Strategy:  defaultDetectionStrategy,
			Threshold: defaultDetectionThreshold,
			Workers:   defaultDetectionWorkers,
		},
		Embedding: Embedding{
			InputName:  defaultEmbeddingInputName,
			OutputName: defaultEmbeddingOutputName,
			ImageSize:  defaultEmbeddingImageSize,
		},
		Export: Export{
			Workers: defaultExportWorkers,
		},
		Transcription: Transcription{
			Command:  defaultTranscriptionCommand,
			Model:    defaultTranscriptionModel,
			Language: defaultTranscriptionLanguage,
		},
		Storage: Storage{
			Prefix: defaultStoragePrefix,
		},
		Metrics: Metrics{
			Bind: defaultMetricsBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
