// Package stderrmon drains a child process's diagnostic stream on its own
// goroutine so that a slow, silent, or bursty stderr never blocks or
// back-pressures the protocol exchange on stdin/stdout.
package stderrmon

import (
	"bufio"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	// maxLineSize bounds a single diagnostic line.
	maxLineSize = 1024 * 1024 // 1MB

	// maxTailSize caps the rolling buffer kept for exit diagnostics.
	// Consumption continues past the cap; the buffer just stops growing.
	maxTailSize = 10 * 1024 * 1024 // 10MB
)

// Event is one classified diagnostic line.
type Event struct {
	// Tag is the classification assigned by the Classifier.
	Tag string

	// Line is the raw stderr line, without the trailing newline.
	Line string

	// Time is when the line was observed.
	Time time.Time
}

// Classifier maps a stderr line to zero or one tagged event. Returning
// ok=false discards the line.
type Classifier func(line string) (tag string, ok bool)

// Observer receives notable events. It runs on the monitor goroutine and
// must not block on protocol state.
type Observer func(Event)

// MatchKeywords returns a Classifier that tags a line with the first
// keyword it contains. This mirrors the usual server-log filter
// (ERROR / WARN / specific trace markers).
func MatchKeywords(keywords ...string) Classifier {
	return func(line string) (string, bool) {
		for _, kw := range keywords {
			if strings.Contains(line, kw) {
				return kw, true
			}
		}

		return "", false
	}
}

// Monitor consumes a diagnostic stream line-by-line until end-of-input.
// It is purely observational: it shares no locks with the request path.
type Monitor struct {
	log      *slog.Logger
	classify Classifier
	observe  Observer

	tailMu sync.Mutex
	tail   strings.Builder

	stopMu  sync.Mutex
	stopped bool

	wg sync.WaitGroup
}

// New creates a monitor. classify may be nil (every line is discarded after
// buffering); observe may be nil (classified events are counted into the
// tail only).
func New(log *slog.Logger, classify Classifier, observe Observer) *Monitor {
	return &Monitor{
		log:      log.With("component", "stderr_monitor"),
		classify: classify,
		observe:  observe,
	}
}

// Start begins consuming r on a dedicated goroutine. Consumption ends when
// the stream reports end-of-input (the child closed stderr or exited) or
// after Stop. Read errors are logged and skipped, never propagated:
// stderr monitoring is best-effort.
func (m *Monitor) Start(r io.Reader) {
	m.wg.Add(1)

	go func() {
		defer m.wg.Done()
		defer m.log.Debug("Stderr monitor stopped")

		scanner := bufio.NewScanner(r)
		buf := make([]byte, maxLineSize)
		scanner.Buffer(buf, maxLineSize)

		for scanner.Scan() {
			if m.isStopped() {
				return
			}

			line := scanner.Text()
			m.appendTail(line)

			if m.classify == nil {
				continue
			}

			tag, ok := m.classify(line)
			if !ok {
				continue
			}

			m.log.Debug("Notable stderr line", "tag", tag)

			if m.observe != nil {
				m.observe(Event{Tag: tag, Line: line, Time: time.Now()})
			}
		}

		if err := scanner.Err(); err != nil {
			// Best-effort: the process may simply have been killed.
			m.log.Debug("Stderr scanner error", "error", err)
		}
	}()
}

// Stop asks the monitor to cease classification. The goroutine itself
// unblocks when the stream closes (process exit or kill closes the pipe).
func (m *Monitor) Stop() {
	m.stopMu.Lock()
	m.stopped = true
	m.stopMu.Unlock()
}

// Wait blocks until the monitor goroutine has exited.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

// Tail returns the buffered diagnostic output collected so far, for
// attaching to process-exit errors.
func (m *Monitor) Tail() string {
	m.tailMu.Lock()
	defer m.tailMu.Unlock()

	return m.tail.String()
}

func (m *Monitor) isStopped() bool {
	m.stopMu.Lock()
	defer m.stopMu.Unlock()

	return m.stopped
}

func (m *Monitor) appendTail(line string) {
	m.tailMu.Lock()
	defer m.tailMu.Unlock()

	if m.tail.Len() >= maxTailSize {
		return
	}

	if m.tail.Len() > 0 {
		m.tail.WriteString("\n")
	}

	m.tail.WriteString(line)
}
