package stderrmon

import (
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMatchKeywords(t *testing.T) {
	classify := MatchKeywords("ERROR", "WARN")

	tag, ok := classify("2024-01-01 ERROR something broke")
	require.True(t, ok)
	require.Equal(t, "ERROR", tag)

	_, ok = classify("DEBUG all quiet")
	require.False(t, ok)
}

func TestMonitor_ForwardsNotableEvents(t *testing.T) {
	var mu sync.Mutex

	var events []Event

	m := New(nopLogger(), MatchKeywords("ERROR"), func(e Event) {
		mu.Lock()
		defer mu.Unlock()

		events = append(events, e)
	})

	in := "INFO starting\nERROR disk on fire\nINFO still going\nERROR again\n"
	m.Start(strings.NewReader(in))
	m.Wait()

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, events, 2)
	require.Equal(t, "ERROR disk on fire", events[0].Line)
	require.Equal(t, "ERROR again", events[1].Line)
}

func TestMonitor_TailKeepsAllLines(t *testing.T) {
	m := New(nopLogger(), nil, nil)

	m.Start(strings.NewReader("one\ntwo\nthree\n"))
	m.Wait()

	require.Equal(t, "one\ntwo\nthree", m.Tail())
}

func TestMonitor_SlowStreamDoesNotBlockCaller(t *testing.T) {
	pr, pw := io.Pipe()

	m := New(nopLogger(), nil, nil)

	start := time.Now()
	m.Start(pr)
	// Start must return immediately even though the stream never produces.
	require.Less(t, time.Since(start), 100*time.Millisecond)

	_ = pw.Close()
	m.Wait()
}

func TestMonitor_StopEndsClassification(t *testing.T) {
	pr, pw := io.Pipe()

	observed := make(chan Event, 16)

	m := New(nopLogger(), MatchKeywords("X"), func(e Event) {
		observed <- e
	})
	m.Start(pr)

	_, err := io.WriteString(pw, "X first\n")
	require.NoError(t, err)

	select {
	case <-observed:
	case <-time.After(2 * time.Second):
		t.Fatal("first event not observed")
	}

	m.Stop()

	_, err = io.WriteString(pw, "X second\n")
	require.NoError(t, err)
	_ = pw.Close()
	m.Wait()

	select {
	case e := <-observed:
		t.Fatalf("unexpected event after Stop: %+v", e)
	default:
	}
}
