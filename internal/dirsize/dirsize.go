// Package dirsize implements the asynchronous recursive directory-size
// worker: submitted tasks are computed on background goroutines, and a
// poller drains completions to broadcast them over SSE.
package dirsize

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quickserve/quickserve/internal/sse"
)

// Task is one submitted computation request.
type Task struct {
	WebPath string // the path as requested by the client
	AbsPath string // absolute filesystem path to sum
}

// Result is a completed computation.
type Result struct {
	WebPath string
	Size    int64
}

const pollInterval = 50 * time.Millisecond

// Manager tracks in-flight tasks and publishes completions to a
// Broadcaster. The cyclic dependency between the worker and the
// broadcaster is resolved by constructor injection: callers build the
// Broadcaster first and hand this Manager a reference to it.
type Manager struct {
	broadcaster *sse.Broadcaster
	logger      *logrus.Logger
	exact       bool

	mu      sync.Mutex
	pending map[string]struct{} // web paths currently being computed
	done    chan Result

	stop     chan struct{}
	stopOnce sync.Once
}

// New constructs a Manager bound to broadcaster and starts its poller.
func New(broadcaster *sse.Broadcaster, logger *logrus.Logger, exact bool) *Manager {
	m := &Manager{
		broadcaster: broadcaster,
		logger:      logger,
		exact:       exact,
		pending:     make(map[string]struct{}),
		done:        make(chan Result, 64),
		stop:        make(chan struct{}),
	}
	go m.poll()
	return m
}

// Submit starts a background computation for task, unless a computation for
// the same web path is already in flight.
func (m *Manager) Submit(task Task) {
	m.mu.Lock()
	if _, inFlight := m.pending[task.WebPath]; inFlight {
		m.mu.Unlock()
		return
	}
	m.pending[task.WebPath] = struct{}{}
	m.mu.Unlock()

	go m.compute(task)
}

func (m *Manager) compute(task Task) {
	size, err := sumTree(task.AbsPath)

	m.mu.Lock()
	delete(m.pending, task.WebPath)
	m.mu.Unlock()

	if err != nil {
		// A task that errors is logged and discarded; there is no
		// client-visible notification, by design.
		if m.logger != nil {
			m.logger.WithError(err).WithField("path", task.AbsPath).Warn("dirsize: computation failed")
		}
		return
	}

	select {
	case m.done <- Result{WebPath: task.WebPath, Size: size}:
	default:
		if m.logger != nil {
			m.logger.WithField("path", task.AbsPath).Warn("dirsize: completion queue full, dropping result")
		}
	}
}

// poll wakes at a short interval to drain completed tasks and broadcast
// them; an idle poller simply yields.
func (m *Manager) poll() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.drain()
		case <-m.stop:
			return
		}
	}
}

func (m *Manager) drain() {
	for {
		select {
		case res := <-m.done:
			payload := fmt.Sprintf(`{"web_path":%q,"size":%q}`, res.WebPath, FormatSize(res.Size, m.exact))
			m.broadcaster.Broadcast(sse.Event{Name: "dir-size", Data: payload})
		default:
			return
		}
	}
}

// Stop ends the poller goroutine. It is safe to call more than once; main
// defers it, and tests call it so the poller goroutine is not leaked.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func sumTree(root string) (int64, error) {
	var total int64
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable entries rather than aborting the sum
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}

// FormatSize renders n bytes either as an exact byte count or with binary
// SI units (KiB, MiB, ...), per §4.9.
func FormatSize(n int64, exact bool) string {
	if exact {
		return fmt.Sprintf("%d", n)
	}
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
