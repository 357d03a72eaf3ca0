package coderunner

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrHostUnavailable wraps failures to create or start an execution host.
	ErrHostUnavailable = errors.New("execution host unavailable")
	// ErrHostCrashed is returned when a host stops before reporting completion.
	ErrHostCrashed = errors.New("execution host terminated unexpectedly")
)

// LoadError reports that the submitted source failed to load or compile.
type LoadError struct {
	Message string
}

func (e *LoadError) Error() string {
	return e.Message
}

// Host runs one job inside an isolated runtime.
type Host interface {
	// Execute loads job.Source once and runs every invocation in order,
	// forwarding console output to sink as it arrives.
	Execute(ctx context.Context, job Job, sink ConsoleSink) ([]Outcome, error)
	// Kill forcibly terminates the host. It must not depend on the sandboxed
	// code cooperating.
	Kill() error
}

// Backend hands out hosts for one language.
type Backend interface {
	Acquire(ctx context.Context) (Host, error)
	// Release returns a host after a run. Hosts that timed out, crashed or were
	// killed are released with reusable=false and must be disposed.
	Release(host Host, reusable bool)
	Close() error
}

const maxMessageBytes = 8 * 1024 * 1024

// ErrProtocolViolation marks a host that reported something no honest driver
// would, such as two results for one test case.
var ErrProtocolViolation = errors.New("execution host broke the result protocol")

// message is the newline-delimited JSON protocol spoken by the drivers. Every
// message carries the id of the job it belongs to.
type message struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Case       *int   `json:"case,omitempty"`
	Stream     string `json:"stream,omitempty"`
	Data       string `json:"data,omitempty"`
	Index      int    `json:"index"`
	OK         bool   `json:"ok"`
	Actual     string `json:"actual,omitempty"`
	Structured bool   `json:"structured"`
	Error      string `json:"error,omitempty"`
	Dirty      bool   `json:"dirty,omitempty"`
}

// transcript is what a host reported for one job.
type transcript struct {
	outcomes []Outcome
	// dirty is set when the protocol stream or the interpreter state can no
	// longer be trusted for another job.
	dirty bool
}

func newProtocolScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxMessageBytes)
	return scanner
}

// readOutcomes consumes protocol messages for job until its done message.
// Lines that do not parse or belong to another job are dropped and mark the
// transcript dirty; console output written outside the protocol never
// reaches this channel.
func readOutcomes(lines *bufio.Scanner, job Job, sink ConsoleSink) (transcript, error) {
	expected := make(map[int]bool, len(job.Invocations))
	for _, inv := range job.Invocations {
		expected[inv.Index] = true
	}

	var tr transcript
	seen := make(map[int]bool, len(job.Invocations))
	perCase := make(map[int][]string)
	current := -1
	var loadErr error

	emit := func(line ConsoleLine) {
		perCase[line.Case] = append(perCase[line.Case], line.Text)
		if sink != nil {
			sink(line)
		}
	}

	for lines.Scan() {
		raw := lines.Bytes()
		var msg message
		if len(raw) == 0 || json.Unmarshal(raw, &msg) != nil || msg.Type == "" || msg.ID != job.ID {
			tr.dirty = true
			continue
		}

		switch msg.Type {
		case "log":
			if msg.Case != nil {
				current = *msg.Case
			}
			stream := msg.Stream
			if stream == "" {
				stream = "stdout"
			}
			emit(ConsoleLine{Case: current, Stream: stream, Text: msg.Data})
		case "result":
			if !expected[msg.Index] {
				tr.dirty = true
				return tr, fmt.Errorf("%w: %w: result for unknown case %d", ErrHostCrashed, ErrProtocolViolation, msg.Index)
			}
			if seen[msg.Index] {
				tr.dirty = true
				return tr, fmt.Errorf("%w: %w: duplicate result for case %d", ErrHostCrashed, ErrProtocolViolation, msg.Index)
			}
			seen[msg.Index] = true
			tr.outcomes = append(tr.outcomes, Outcome{
				Index:      msg.Index,
				OK:         msg.OK,
				Actual:     msg.Actual,
				Structured: msg.Structured,
				Error:      msg.Error,
				Console:    append([]string(nil), perCase[msg.Index]...),
			})
		case "load_error":
			// keep reading so a reusable worker is left at a job boundary
			loadErr = &LoadError{Message: strings.TrimRight(msg.Error, "\n")}
		case "done":
			if msg.Dirty {
				tr.dirty = true
			}
			if loadErr != nil {
				tr.outcomes = nil
				return tr, loadErr
			}
			if len(tr.outcomes) != len(job.Invocations) {
				tr.dirty = true
			}
			return tr, nil
		default:
			tr.dirty = true
		}
	}

	tr.dirty = true
	if loadErr != nil {
		return tr, loadErr
	}
	if err := lines.Err(); err != nil {
		return tr, fmt.Errorf("%w: %v", ErrHostCrashed, err)
	}
	return tr, ErrHostCrashed
}
