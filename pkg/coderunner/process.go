package coderunner

import (
	"bufio"
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

//go:embed drivers/runner.js drivers/runner.py
var driverFS embed.FS

var driverFiles = map[Language]string{
	LanguageJavaScript: "drivers/runner.js",
	LanguagePython:     "drivers/runner.py",
}

// DriverScript returns the embedded driver source for a language along with
// its file name.
func DriverScript(lang Language) (string, []byte, error) {
	path, ok := driverFiles[lang]
	if !ok {
		return "", nil, ErrUnsupportedLanguage
	}
	content, err := driverFS.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	return filepath.Base(path), content, nil
}

const disposeGrace = 2 * time.Second

// ProcessConfig describes how to launch an interpreter subprocess.
type ProcessConfig struct {
	Language Language
	// Command is the interpreter invocation, e.g. {"node"} or {"python3", "-u"}.
	Command       []string
	Env           []string
	MemoryLimitMB int
	Logger        zerolog.Logger
}

type processLauncher struct {
	cfg        ProcessConfig
	dir        string
	driverPath string
	logger     zerolog.Logger
}

func newProcessLauncher(cfg ProcessConfig) (*processLauncher, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("%w: no interpreter command configured for %s", ErrHostUnavailable, cfg.Language)
	}
	name, content, err := DriverScript(cfg.Language)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "coderunner-"+string(cfg.Language)+"-")
	if err != nil {
		return nil, fmt.Errorf("create driver dir: %w", err)
	}
	driverPath := filepath.Join(dir, name)
	if err := os.WriteFile(driverPath, content, 0o600); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("write driver: %w", err)
	}

	return &processLauncher{
		cfg:        cfg,
		dir:        dir,
		driverPath: driverPath,
		logger:     cfg.Logger.With().Str("component", "coderunner_process").Str("language", string(cfg.Language)).Logger(),
	}, nil
}

func (l *processLauncher) environment() []string {
	env := []string{"PATH=" + os.Getenv("PATH"), "HOME=" + l.dir, "PYTHONIOENCODING=utf-8", "PYTHONDONTWRITEBYTECODE=1"}
	if l.cfg.MemoryLimitMB > 0 {
		env = append(env, fmt.Sprintf("CODEMEET_MEMORY_MB=%d", l.cfg.MemoryLimitMB))
		if l.cfg.Language == LanguageJavaScript {
			env = append(env, fmt.Sprintf("NODE_OPTIONS=--max-old-space-size=%d", l.cfg.MemoryLimitMB))
		}
	}
	return append(env, l.cfg.Env...)
}

func (l *processLauncher) launch(singleUse bool) (*processHost, error) {
	argv := append(append([]string{}, l.cfg.Command...), l.driverPath)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = l.dir
	cmd.Env = l.environment()
	configureProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrHostUnavailable, err)
	}
	// The driver reports on fd 3. An explicit pipe keeps Wait from closing the
	// read side under the reader.
	protocolReader, protocolWriter, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: protocol pipe: %v", ErrHostUnavailable, err)
	}
	cmd.ExtraFiles = []*os.File{protocolWriter}

	relay := &consoleRelay{}
	stderr := &tailBuffer{limit: 4096}
	cmd.Stdout = relay.stream("stdout")
	cmd.Stderr = io.MultiWriter(stderr, relay.stream("stderr"))

	if err := cmd.Start(); err != nil {
		_ = protocolReader.Close()
		_ = protocolWriter.Close()
		return nil, fmt.Errorf("%w: start %s: %v", ErrHostUnavailable, argv[0], err)
	}
	_ = protocolWriter.Close()

	host := &processHost{
		cmd:       cmd,
		stdin:     stdin,
		protocolF: protocolReader,
		protocol:  newProtocolScanner(protocolReader),
		relay:     relay,
		stderr:    stderr,
		exited:    make(chan struct{}),
		singleUse: singleUse,
		logger:    l.logger,
	}
	go func() {
		host.waitErr = cmd.Wait()
		close(host.exited)
	}()

	l.logger.Debug().Int("pid", cmd.Process.Pid).Bool("single_use", singleUse).Msg("execution host started")
	return host, nil
}

func (l *processLauncher) close() error {
	return os.RemoveAll(l.dir)
}

type processHost struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	protocolF *os.File
	protocol  *bufio.Scanner
	relay     *consoleRelay
	stderr    *tailBuffer
	exited    chan struct{}
	waitErr   error
	singleUse bool
	runs      int
	// dirty hosts finished their job but must not serve another one.
	dirty     bool
	killOnce  sync.Once
	logger    zerolog.Logger
}

func (h *processHost) Execute(ctx context.Context, job Job, sink ConsoleSink) ([]Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}
	payload = append(payload, '\n')

	if _, err := h.stdin.Write(payload); err != nil {
		return nil, fmt.Errorf("%w: write job: %v%s", ErrHostCrashed, err, h.stderrSuffix())
	}
	if h.singleUse {
		_ = h.stdin.Close()
	}

	h.relay.attach(sink)
	defer h.relay.detach()

	tr, err := readOutcomes(h.protocol, job, sink)
	if tr.dirty {
		h.dirty = true
		h.logger.Warn().Str("job_id", job.ID).Msg("execution host left the job in an untrusted state")
	}
	if errors.Is(err, ErrHostCrashed) {
		return nil, fmt.Errorf("%w%s", err, h.stderrSuffix())
	}
	return tr.outcomes, err
}

// Kill terminates the interpreter and everything it spawned.
func (h *processHost) Kill() error {
	var err error
	h.killOnce.Do(func() {
		if h.cmd.Process == nil {
			return
		}
		err = killProcessGroup(h.cmd)
		h.logger.Debug().Int("pid", h.cmd.Process.Pid).Msg("execution host killed")
	})
	return err
}

func (h *processHost) alive() bool {
	select {
	case <-h.exited:
		return false
	default:
		return true
	}
}

// dispose closes stdin, waits briefly for a clean exit and kills otherwise.
func (h *processHost) dispose() {
	_ = h.stdin.Close()
	select {
	case <-h.exited:
	case <-time.After(disposeGrace):
		_ = h.Kill()
		<-h.exited
	}
	_ = h.protocolF.Close()
}

func (h *processHost) stderrSuffix() string {
	tail := strings.TrimSpace(h.stderr.String())
	if tail == "" {
		return ""
	}
	return ": " + tail
}

// consoleRelay turns raw fd 1 and fd 2 output into console lines for the job
// currently running. Output between jobs is dropped.
type consoleRelay struct {
	mu   sync.Mutex
	sink ConsoleSink
}

const maxRelayLine = 64 * 1024

func (r *consoleRelay) attach(sink ConsoleSink) {
	r.mu.Lock()
	r.sink = sink
	r.mu.Unlock()
}

func (r *consoleRelay) detach() {
	r.attach(nil)
}

func (r *consoleRelay) deliver(stream, text string) {
	r.mu.Lock()
	sink := r.sink
	r.mu.Unlock()
	if sink != nil {
		sink(ConsoleLine{Case: -1, Stream: stream, Text: strings.TrimRight(text, "\r")})
	}
}

func (r *consoleRelay) stream(name string) io.Writer {
	return &relayWriter{relay: r, stream: name}
}

type relayWriter struct {
	relay   *consoleRelay
	stream  string
	pending []byte
}

func (w *relayWriter) Write(p []byte) (int, error) {
	w.pending = append(w.pending, p...)
	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			break
		}
		w.relay.deliver(w.stream, string(w.pending[:i]))
		w.pending = w.pending[i+1:]
	}
	if len(w.pending) > maxRelayLine {
		w.relay.deliver(w.stream, string(w.pending))
		w.pending = nil
	}
	return len(p), nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	data  []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
	if over := len(b.data) - b.limit; over > 0 {
		b.data = b.data[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}

// ProcessBackend starts a fresh interpreter for every run. Nothing survives
// between runs, which suits cheap-to-start runtimes such as node.
type ProcessBackend struct {
	launcher *processLauncher
}

// NewProcessBackend prepares a per-run subprocess backend.
func NewProcessBackend(cfg ProcessConfig) (*ProcessBackend, error) {
	launcher, err := newProcessLauncher(cfg)
	if err != nil {
		return nil, err
	}
	return &ProcessBackend{launcher: launcher}, nil
}

func (b *ProcessBackend) Acquire(ctx context.Context) (Host, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.launcher.launch(true)
}

func (b *ProcessBackend) Release(host Host, reusable bool) {
	h, ok := host.(*processHost)
	if !ok {
		return
	}
	if !reusable {
		_ = h.Kill()
	}
	h.dispose()
}

func (b *ProcessBackend) Close() error {
	return b.launcher.close()
}
