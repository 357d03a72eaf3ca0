package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	execDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "codemeet",
		Subsystem: "sandbox",
		Name:      "execution_duration_seconds",
		Help:      "Duration of sandbox container executions",
		Buckets:   prometheus.DefBuckets,
	}, []string{"image"})

	execAborted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codemeet",
		Subsystem: "sandbox",
		Name:      "execution_aborted_total",
		Help:      "Number of sandbox executions killed before exiting",
	}, []string{"image"})

	execFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codemeet",
		Subsystem: "sandbox",
		Name:      "execution_failures_total",
		Help:      "Number of sandbox executions that resulted in an error",
	}, []string{"image"})
)

// ErrAborted is returned when the execution context ended before the container exited.
var ErrAborted = errors.New("sandbox execution aborted")

// Sandbox runs a command inside a throwaway container.
type Sandbox interface {
	Run(ctx context.Context, req ExecutionRequest) (ExecutionResult, error)
	Close() error
}

// ExecutionRequest describes one container execution.
type ExecutionRequest struct {
	Image         string
	Cmd           []string
	Env           []string
	Workspace     string
	WorkingDir    string
	MemoryLimitMB int64
	CPUShares     int64
	// AllowNetwork attaches the bridge network; submissions run with none by default.
	AllowNetwork bool
	ReadOnlyFS   bool
}

// ExecutionResult summarises the outcome of a container execution.
type ExecutionResult struct {
	Stdout           string
	Stderr           string
	ExitCode         int
	Duration         time.Duration
	Aborted          bool
	MemoryUsageBytes int64
	CPUUsageNanosec  uint64
}

// Config groups sandbox configuration values.
type Config struct {
	Host          string
	MemoryLimitMB int64
	CPUShares     int64
	WorkingDir    string
	Logger        zerolog.Logger
}

// ContainerSandbox implements Sandbox using the Docker engine API.
type ContainerSandbox struct {
	client *client.Client
	cfg    Config
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewSandbox constructs a Docker backed sandbox.
func NewSandbox(cfg Config) (*ContainerSandbox, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	} else {
		opts = append(opts, client.FromEnv)
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	if cfg.WorkingDir == "" {
		cfg.WorkingDir = "/workspace"
	}

	return &ContainerSandbox{
		client: cli,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/codemeet-api/pkg/docker"),
		logger: cfg.Logger.With().Str("component", "docker_sandbox").Logger(),
	}, nil
}

// Ping checks that the docker daemon is reachable.
func (s *ContainerSandbox) Ping(ctx context.Context) error {
	_, err := s.client.Ping(ctx)
	return err
}

// WorkingDir is where the workspace is mounted inside the container.
func (s *ContainerSandbox) WorkingDir() string {
	return s.cfg.WorkingDir
}

// Run executes the command and returns once the container exits or ctx ends.
// The container is killed when ctx ends first; the caller owns the deadline.
func (s *ContainerSandbox) Run(parent context.Context, req ExecutionRequest) (ExecutionResult, error) {
	image := req.Image
	if image == "" {
		return ExecutionResult{}, errors.New("image is required")
	}

	ctx, span := s.tracer.Start(parent, "docker.sandbox.run", trace.WithAttributes(
		attribute.String("docker.image", image),
	))
	defer span.End()

	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			Memory:    req.MemoryLimitMB * 1024 * 1024,
			CPUShares: req.CPUShares,
		},
		NetworkMode:    "none",
		ReadonlyRootfs: req.ReadOnlyFS,
	}
	if req.AllowNetwork {
		hostCfg.NetworkMode = "bridge"
	}

	if req.Workspace != "" {
		hostCfg.Mounts = append(hostCfg.Mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   req.Workspace,
			Target:   s.cfg.WorkingDir,
			ReadOnly: true,
		})
	}

	if hostCfg.Resources.Memory == 0 && s.cfg.MemoryLimitMB > 0 {
		hostCfg.Resources.Memory = s.cfg.MemoryLimitMB * 1024 * 1024
	}
	if hostCfg.Resources.CPUShares == 0 && s.cfg.CPUShares > 0 {
		hostCfg.Resources.CPUShares = s.cfg.CPUShares
	}

	config := &container.Config{
		Image:           image,
		Cmd:             req.Cmd,
		Env:             req.Env,
		WorkingDir:      req.WorkingDir,
		AttachStdout:    true,
		AttachStderr:    true,
		NetworkDisabled: !req.AllowNetwork,
	}
	if config.WorkingDir == "" {
		config.WorkingDir = s.cfg.WorkingDir
	}

	start := time.Now()
	result := ExecutionResult{}

	resp, err := s.client.ContainerCreate(ctx, config, hostCfg, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		execFailures.WithLabelValues(image).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, fmt.Errorf("container create: %w", err)
	}

	containerID := resp.ID
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.client.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true}); err != nil {
			s.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to remove container")
		}
	}()

	if err := s.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		execFailures.WithLabelValues(image).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, fmt.Errorf("container start: %w", err)
	}

	statusCh, errCh := s.client.ContainerWait(ctx, containerID, container.WaitConditionNextExit)

	var waitErr error
	select {
	case err := <-errCh:
		waitErr = err
	case status := <-statusCh:
		result.ExitCode = int(status.StatusCode)
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	result.Duration = time.Since(start)
	execDuration.WithLabelValues(image).Observe(result.Duration.Seconds())

	if waitErr != nil {
		if ctx.Err() == nil {
			execFailures.WithLabelValues(image).Inc()
			span.RecordError(waitErr)
			span.SetStatus(codes.Error, waitErr.Error())
			return result, fmt.Errorf("container wait: %w", waitErr)
		}
		result.Aborted = true
		execAborted.WithLabelValues(image).Inc()
		killCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.client.ContainerKill(killCtx, containerID, "KILL"); err != nil {
			s.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to kill aborted container")
		}
		span.SetStatus(codes.Error, "execution aborted")
		return result, fmt.Errorf("%w: %v", ErrAborted, waitErr)
	}

	logCtx, cancelLogs := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelLogs()
	logReader, err := s.client.ContainerLogs(logCtx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err == nil {
		defer logReader.Close()
		stdout, stderr, err := splitDockerLogs(logReader)
		if err != nil {
			s.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to read container logs")
		} else {
			result.Stdout = stdout
			result.Stderr = stderr
		}
	} else {
		s.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to fetch container logs")
	}

	statsCtx, cancelStats := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelStats()
	stats, err := s.client.ContainerStatsOneShot(statsCtx, containerID)
	if err == nil {
		defer stats.Body.Close()
		var data types.StatsJSON
		if decodeErr := json.NewDecoder(stats.Body).Decode(&data); decodeErr == nil {
			result.MemoryUsageBytes = int64(data.MemoryStats.Usage)
			result.CPUUsageNanosec = data.CPUStats.CPUUsage.TotalUsage
		}
	}

	s.logger.Debug().
		Str("image", image).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Msg("sandbox execution finished")

	return result, nil
}

func splitDockerLogs(reader io.Reader) (string, string, error) {
	var stdoutBuf, stderrBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, reader); err != nil {
		return "", "", err
	}
	return stdoutBuf.String(), stderrBuf.String(), nil
}

// Close shuts down the sandbox's underlying client.
func (s *ContainerSandbox) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
