package preflight

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"vast/internal/config"
	"vast/internal/deps"
)

// CheckStorage verifies the MinIO endpoint answers its liveness probe.
func CheckStorage(ctx context.Context, endpoint string, useSSL bool) Result {
	const name = "Object storage"

	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return Result{Name: name, Detail: "missing endpoint"}
	}
	base := endpoint
	if !strings.Contains(base, "://") {
		scheme := "http"
		if useSSL {
			scheme = "https"
		}
		base = scheme + "://" + base
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+"/minio/health/live", nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%v)", err)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%v)", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	}
	return Result{Name: name, Detail: fmt.Sprintf("health check failed (%d)", resp.StatusCode)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the binaries and model files the configuration
// needs. The pipeline and the CLI status command share this list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.Sampling.FFmpegBinary,
			Description: "Required for frame sampling and clip export",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.Sampling.FFprobeBinary,
			Description: "Required for source inspection",
		},
	}
	if cfg.Transcription.Enabled {
		requirements = append(requirements, deps.Requirement{
			Name:        "Whisper",
			Command:     cfg.Transcription.Command,
			Description: "Required for transcription",
		})
	}
	statuses := deps.CheckBinaries(requirements)

	if cfg.Detection.Strategy == config.StrategyEmbedding {
		files := []deps.Requirement{{
			Name:        "Embedding model",
			Command:     cfg.Embedding.ModelPath,
			Description: "ONNX image encoder for the embedding strategy",
		}}
		if cfg.Embedding.LibraryPath != "" {
			files = append(files, deps.Requirement{
				Name:        "ONNX Runtime",
				Command:     cfg.Embedding.LibraryPath,
				Description: "Shared library loaded by the embedding strategy",
			})
		}
		statuses = append(statuses, deps.CheckFiles(files)...)
	}
	return statuses
}
