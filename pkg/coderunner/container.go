package coderunner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/codemeet-api/pkg/docker"
)

// ContainerConfig configures a container backed backend for one language.
type ContainerConfig struct {
	Language      Language
	Sandbox       docker.Sandbox
	Image         string
	WorkingDir    string
	WorkspaceRoot string
	MemoryLimitMB int64
	CPUShares     int64
	Logger        zerolog.Logger
}

// ContainerBackend runs each batch in a throwaway container. The driver and
// the job are written into a workspace that is mounted read-only.
type ContainerBackend struct {
	cfg    ContainerConfig
	driver string
	script []byte
	logger zerolog.Logger
}

// NewContainerBackend validates cfg and prepares the driver script.
func NewContainerBackend(cfg ContainerConfig) (*ContainerBackend, error) {
	if cfg.Sandbox == nil {
		return nil, fmt.Errorf("%w: sandbox is required", ErrHostUnavailable)
	}
	if cfg.Image == "" {
		return nil, fmt.Errorf("%w: no image configured for %s", ErrHostUnavailable, cfg.Language)
	}
	if cfg.WorkingDir == "" {
		cfg.WorkingDir = "/workspace"
	}
	name, script, err := DriverScript(cfg.Language)
	if err != nil {
		return nil, err
	}
	return &ContainerBackend{
		cfg:    cfg,
		driver: name,
		script: script,
		logger: cfg.Logger.With().Str("component", "coderunner_container").Str("language", string(cfg.Language)).Logger(),
	}, nil
}

func (b *ContainerBackend) Acquire(ctx context.Context) (Host, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &containerHost{backend: b}, nil
}

// Release is a no-op; containers never outlive their run.
func (b *ContainerBackend) Release(Host, bool) {}

func (b *ContainerBackend) Close() error {
	return nil
}

// protocolRedirect runs the interpreter with fd 3 on the container's stdout
// and fd 1 folded into stderr, so only the driver writes to the stream that
// is parsed as protocol.
const protocolRedirect = `exec "$0" "$@" 3>&1 1>&2`

func (b *ContainerBackend) command() []string {
	driver := path.Join(b.cfg.WorkingDir, b.driver)
	job := path.Join(b.cfg.WorkingDir, "job.json")
	if b.cfg.Language == LanguagePython {
		return []string{"sh", "-c", protocolRedirect, "python", "-u", driver, job}
	}
	return []string{"sh", "-c", protocolRedirect, "node", driver, job}
}

func (b *ContainerBackend) prepareWorkspace(job Job) (string, error) {
	dir, err := os.MkdirTemp(b.cfg.WorkspaceRoot, "run-")
	if err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	if err := os.Chmod(dir, 0o755); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("chmod workspace: %w", err)
	}

	payload, err := json.Marshal(job)
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("encode job: %w", err)
	}
	files := map[string][]byte{b.driver: b.script, "job.json": payload}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), content, 0o644); err != nil {
			_ = os.RemoveAll(dir)
			return "", fmt.Errorf("write %s: %w", name, err)
		}
	}
	return dir, nil
}

type containerHost struct {
	backend *ContainerBackend

	mu     sync.Mutex
	cancel context.CancelFunc
	killed bool
}

func (h *containerHost) Execute(ctx context.Context, job Job, sink ConsoleSink) ([]Outcome, error) {
	b := h.backend
	dir, err := b.prepareWorkspace(job)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	h.mu.Lock()
	if h.killed {
		h.mu.Unlock()
		return nil, ErrHostCrashed
	}
	h.cancel = cancel
	h.mu.Unlock()

	result, err := b.cfg.Sandbox.Run(execCtx, docker.ExecutionRequest{
		Image:         b.cfg.Image,
		Cmd:           b.command(),
		Env:           []string{"PYTHONIOENCODING=utf-8", "PYTHONDONTWRITEBYTECODE=1"},
		Workspace:     dir,
		WorkingDir:    b.cfg.WorkingDir,
		MemoryLimitMB: b.cfg.MemoryLimitMB,
		CPUShares:     b.cfg.CPUShares,
		ReadOnlyFS:    true,
	})
	if err != nil {
		if errors.Is(err, docker.ErrAborted) {
			return nil, fmt.Errorf("%w: %v", ErrHostCrashed, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrHostUnavailable, err)
	}

	tr, err := readOutcomes(newProtocolScanner(strings.NewReader(result.Stdout)), job, sink)
	if tr.dirty {
		b.logger.Warn().Str("job_id", job.ID).Msg("container reported an untrusted protocol stream")
	}
	if err == nil && sink != nil {
		for _, line := range splitConsole(result.Stderr) {
			sink(ConsoleLine{Case: -1, Stream: "stderr", Text: line})
		}
	}
	if errors.Is(err, ErrHostCrashed) {
		tail := strings.TrimSpace(result.Stderr)
		b.logger.Warn().Int("exit_code", result.ExitCode).Str("stderr", tail).Msg("container exited before finishing the job")
		if tail != "" {
			return nil, fmt.Errorf("%w (exit code %d): %s", err, result.ExitCode, tail)
		}
		return nil, fmt.Errorf("%w (exit code %d)", err, result.ExitCode)
	}
	return tr.outcomes, err
}

func splitConsole(output string) []string {
	output = strings.TrimRight(output, "\n")
	if output == "" {
		return nil
	}
	lines := strings.Split(output, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, "\r")
	}
	return lines
}

func (h *containerHost) Kill() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.killed = true
	if h.cancel != nil {
		h.cancel()
	}
	return nil
}
