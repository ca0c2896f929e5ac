// Package sse implements the server-sent-event broadcaster: a live
// subscriber set with periodic keepalives and best-effort fan-out.
package sse

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Event is one SSE message. A Comment-only event (Name and Data empty)
// serializes to a ":comment" line, used for keepalives.
type Event struct {
	Name    string // "" for an unnamed event
	Data    string
	ID      string
	Comment string
}

// WriteTo writes the wire-format framing for the event: lines beginning
// with "event:", "id:", "data:" or ":" (comment), terminated by a blank
// line, per the SSE protocol.
func (e Event) WriteTo(w *strings.Builder) {
	if e.Comment != "" {
		fmt.Fprintf(w, ":%s\n\n", e.Comment)
		return
	}
	if e.Name != "" {
		fmt.Fprintf(w, "event: %s\n", e.Name)
	}
	if e.ID != "" {
		fmt.Fprintf(w, "id: %s\n", e.ID)
	}
	for _, line := range strings.Split(e.Data, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	w.WriteString("\n")
}

const subscriberBufferSize = 10

type subscriber struct {
	ch           chan Event
	lastActivity time.Time
}

// Broadcaster holds the live subscriber set and fans messages out to it.
// The subscriber set is guarded by mu, held only for the minimum time
// needed to append, snapshot or prune — never across a channel send.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	Logger      *logrus.Logger

	keepaliveInterval time.Duration
	stopKeepalive     chan struct{}
	once              sync.Once
}

// New constructs a Broadcaster and starts its keepalive loop.
func New(logger *logrus.Logger) *Broadcaster {
	b := &Broadcaster{
		subscribers:       make(map[*subscriber]struct{}),
		Logger:            logger,
		keepaliveInterval: 10 * time.Second,
		stopKeepalive:     make(chan struct{}),
	}
	go b.keepaliveLoop()
	return b
}

// NewClient registers a new subscriber, sends it a welcome event, and
// serves the SSE response body until the client disconnects or a send
// fails. It blocks until the request context is done.
func (b *Broadcaster) NewClient(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sub := &subscriber{ch: make(chan Event, subscriberBufferSize), lastActivity: time.Now()}
	b.register(sub)
	defer b.remove(sub)

	welcome := Event{Name: "message", Data: "Connected to SSE event stream"}
	var sb strings.Builder
	welcome.WriteTo(&sb)
	if _, err := w.Write([]byte(sb.String())); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.ch:
			if !ok {
				return
			}
			var sb strings.Builder
			ev.WriteTo(&sb)
			if _, err := w.Write([]byte(sb.String())); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (b *Broadcaster) register(sub *subscriber) {
	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()
}

// remove drops sub from the subscriber set. It is safe to call more than
// once; only the first call has any effect, satisfying "removal happens at
// most once."
func (b *Broadcaster) remove(sub *subscriber) {
	b.mu.Lock()
	_, present := b.subscribers[sub]
	if present {
		delete(b.subscribers, sub)
	}
	b.mu.Unlock()
}

// Broadcast sends msg to every current subscriber, best-effort: a
// subscriber whose buffered channel is full is skipped — the next
// keepalive tick will prune it if it stays unresponsive.
func (b *Broadcaster) Broadcast(msg Event) {
	b.mu.Lock()
	targets := make([]*subscriber, 0, len(b.subscribers))
	for s := range b.subscribers {
		targets = append(targets, s)
	}
	b.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range targets {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case s.ch <- msg:
				b.touch(s)
			default:
				// buffer full; dropped, matching backpressure policy
			}
		}()
	}
	wg.Wait()
}

func (b *Broadcaster) touch(s *subscriber) {
	b.mu.Lock()
	if _, present := b.subscribers[s]; present {
		s.lastActivity = time.Now()
	}
	b.mu.Unlock()
}

func (b *Broadcaster) keepaliveLoop() {
	ticker := time.NewTicker(b.keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.pingAll()
		case <-b.stopKeepalive:
			return
		}
	}
}

// pingAll attempts to deliver a comment-only keepalive to every subscriber;
// a subscriber whose channel is already full is dropped on the spot rather
// than given a second chance, since a full channel means its reader is
// already behind on real events, not just this ping.
func (b *Broadcaster) pingAll() {
	b.mu.Lock()
	targets := make([]*subscriber, 0, len(b.subscribers))
	for s := range b.subscribers {
		targets = append(targets, s)
	}
	b.mu.Unlock()

	for _, s := range targets {
		select {
		case s.ch <- Event{Comment: "ping"}:
		default:
			b.remove(s)
		}
	}
}

// Stop ends the keepalive loop. It is safe to call more than once; main
// defers it, and tests call it so the keepalive goroutine is not leaked.
func (b *Broadcaster) Stop() {
	b.once.Do(func() { close(b.stopKeepalive) })
}

// SubscriberCount reports the number of live subscribers, for tests and
// diagnostics.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
