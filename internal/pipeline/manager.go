package pipeline

import (
	"log/slog"

	"vast/internal/config"
	"vast/internal/embedding"
	"vast/internal/export"
	"vast/internal/logging"
	"vast/internal/media/ffprobe"
	"vast/internal/runstore"
	"vast/internal/services"
	"vast/internal/similarity"
	"vast/internal/storage"
	"vast/internal/transcript"
)

// Manager runs pipeline stages for one source at a time per call. A Manager
// may serve concurrent calls for different sources.
type Manager struct {
	cfg    *config.Config
	store  *runstore.Store
	logger *slog.Logger

	run           services.CommandRunner
	probeRun      ffprobe.OutputRunner
	extractor     export.Extractor
	embedder      similarity.Embedder
	runtime       *embedding.Runtime
	transcriber   transcript.Provider
	mirror        *storage.Mirror
	skipPreflight bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithCommandRunner routes ffmpeg and whisper invocations through r.
func WithCommandRunner(r services.CommandRunner) Option {
	return func(m *Manager) {
		if r != nil {
			m.run = r
		}
	}
}

// WithProbeRunner routes ffprobe invocations through r.
func WithProbeRunner(r ffprobe.OutputRunner) Option {
	return func(m *Manager) {
		if r != nil {
			m.probeRun = r
		}
	}
}

// WithExtractor replaces the ffmpeg clip extractor.
func WithExtractor(x export.Extractor) Option {
	return func(m *Manager) {
		if x != nil {
			m.extractor = x
		}
	}
}

// WithEmbedder supplies the image encoder for the embedding strategy. Without
// one, the manager loads the configured ONNX model for each run.
func WithEmbedder(e similarity.Embedder) Option {
	return func(m *Manager) {
		m.embedder = e
	}
}

// WithEmbeddingRuntime supplies the shared ONNX runtime used to load the
// configured CLIP model. The caller owns rt and closes it after Run returns.
func WithEmbeddingRuntime(rt *embedding.Runtime) Option {
	return func(m *Manager) {
		m.runtime = rt
	}
}

// WithTranscriber replaces the configured whisper transcriber.
func WithTranscriber(p transcript.Provider) Option {
	return func(m *Manager) {
		m.transcriber = p
	}
}

// WithMirror sets the artifact mirror used by the publish stage.
func WithMirror(mirror *storage.Mirror) Option {
	return func(m *Manager) {
		m.mirror = mirror
	}
}

// WithoutPreflight skips the binary and directory checks before a run.
func WithoutPreflight() Option {
	return func(m *Manager) {
		m.skipPreflight = true
	}
}

// NewManager constructs a pipeline manager.
func NewManager(cfg *config.Config, store *runstore.Store, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "pipeline"),
		run:    services.RunCommand,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.extractor == nil {
		x := export.NewFFmpegExtractor(cfg.Sampling.FFmpegBinary)
		x.WithCommandRunner(m.run)
		m.extractor = x
	}
	return m
}

// NewMirrorFromConfig builds the MinIO mirror when storage is enabled. It
// returns nil when the mirror is disabled.
func NewMirrorFromConfig(cfg *config.Config, logger *slog.Logger) (*storage.Mirror, error) {
	if cfg == nil || !cfg.Storage.Enabled {
		return nil, nil
	}
	store, err := storage.NewMinioStore(storage.Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "publish", "create storage client", "check [storage] settings", err)
	}
	return storage.NewMirror(store, cfg.Storage.Prefix, logging.NewComponentLogger(logger, "storage")), nil
}
