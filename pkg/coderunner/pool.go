package coderunner

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolClosed is returned when acquiring from a pool that has been closed.
var ErrPoolClosed = errors.New("worker pool closed")

// PoolConfig tunes a warm worker pool.
type PoolConfig struct {
	Process ProcessConfig
	// Size is the number of idle workers kept ready.
	Size int
	// MaxRuns recycles a worker after it has served this many runs.
	MaxRuns int
}

// PoolBackend keeps interpreters warm between runs for runtimes that are slow
// to start. Every job still loads into a fresh namespace inside the worker. A
// worker that timed out, crashed, was killed or reported drifted interpreter
// state is never handed out again.
type PoolBackend struct {
	launcher *processLauncher
	idle     chan *processHost
	maxRuns  int

	mu     sync.Mutex
	closed bool
}

// NewPoolBackend prepares a warm pool. Call Warm to pre-start workers.
func NewPoolBackend(cfg PoolConfig) (*PoolBackend, error) {
	launcher, err := newProcessLauncher(cfg.Process)
	if err != nil {
		return nil, err
	}
	if cfg.Size <= 0 {
		cfg.Size = 1
	}
	if cfg.MaxRuns <= 0 {
		cfg.MaxRuns = 50
	}
	return &PoolBackend{
		launcher: launcher,
		idle:     make(chan *processHost, cfg.Size),
		maxRuns:  cfg.MaxRuns,
	}, nil
}

// Warm starts workers until the idle set is full.
func (p *PoolBackend) Warm(ctx context.Context) error {
	for len(p.idle) < cap(p.idle) {
		if err := ctx.Err(); err != nil {
			return err
		}
		host, err := p.launcher.launch(false)
		if err != nil {
			return err
		}
		if !p.park(host) {
			host.dispose()
			return nil
		}
	}
	return nil
}

// Idle reports how many warm workers are waiting.
func (p *PoolBackend) Idle() int {
	return len(p.idle)
}

func (p *PoolBackend) Acquire(ctx context.Context) (Host, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case host := <-p.idle:
			if host.alive() {
				return host, nil
			}
			host.dispose()
		default:
			return p.launcher.launch(false)
		}
	}
}

func (p *PoolBackend) Release(host Host, reusable bool) {
	h, ok := host.(*processHost)
	if !ok {
		return
	}
	h.runs++
	if !reusable || h.dirty {
		_ = h.Kill()
		h.dispose()
		return
	}
	if !h.alive() || h.runs >= p.maxRuns || !p.park(h) {
		h.dispose()
	}
}

func (p *PoolBackend) park(h *processHost) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.idle <- h:
		return true
	default:
		return false
	}
}

// Close disposes every idle worker. Workers currently running are disposed
// when they are released.
func (p *PoolBackend) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case h := <-p.idle:
			h.dispose()
		default:
			return p.launcher.close()
		}
	}
}
