package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Strob0t/CodeCouncil/internal/domain/event"
	"github.com/Strob0t/CodeCouncil/internal/port/notifier"
)

// sinkWorker owns one sink's bounded queue. A slow or dead sink only fills
// its own queue.
type sinkWorker struct {
	sink  notifier.Sink
	queue chan event.Progress
}

// ProgressNotifier delivers progress events with one worker goroutine per
// sink, so each sink sees events in the order they were queued. Notify never
// blocks: when a sink's queue is full the event is dropped for that sink and
// logged. Sink failures are logged and not retried.
type ProgressNotifier struct {
	global    []notifier.Sink
	queueSize int
	timeout   time.Duration

	mu      sync.Mutex
	closed  bool
	workers map[notifier.Sink]*sinkWorker
	wg      sync.WaitGroup
}

// NewProgressNotifier starts a worker per global sink. global sinks receive
// every event; Notify may add per-session sinks, which get their own worker
// until Release.
func NewProgressNotifier(global []notifier.Sink, queueSize int, timeout time.Duration) *ProgressNotifier {
	if queueSize < 1 {
		queueSize = 1
	}
	n := &ProgressNotifier{
		global:    global,
		queueSize: queueSize,
		timeout:   timeout,
		workers:   make(map[notifier.Sink]*sinkWorker, len(global)),
	}
	for _, s := range global {
		if s != nil {
			n.workerLocked(s)
		}
	}
	return n
}

// workerLocked returns the worker for s, starting one if needed. n.mu must be held.
func (n *ProgressNotifier) workerLocked(s notifier.Sink) *sinkWorker {
	if w, ok := n.workers[s]; ok {
		return w
	}
	w := &sinkWorker{sink: s, queue: make(chan event.Progress, n.queueSize)}
	n.workers[s] = w
	n.wg.Add(1)
	go n.run(w)
	return w
}

// Notify queues ev for the global sinks plus extra.
func (n *ProgressNotifier) Notify(ctx context.Context, ev event.Progress, extra ...notifier.Sink) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}

	targets := make([]*sinkWorker, 0, len(n.global)+len(extra))
	for _, s := range n.global {
		if w, ok := n.workers[s]; ok {
			targets = append(targets, w)
		}
	}
	for _, s := range extra {
		if s != nil {
			targets = append(targets, n.workerLocked(s))
		}
	}

	for _, w := range targets {
		select {
		case w.queue <- ev:
		default:
			slog.WarnContext(ctx, "progress event dropped: queue full",
				"sink", w.sink.Name(), "session_id", ev.SessionID, "event", ev.Event, "passing", ev.Passing)
		}
	}
}

// Release stops the workers of per-session sinks once their queued events
// are delivered. Global sinks are left running.
func (n *ProgressNotifier) Release(sinks ...notifier.Sink) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	for _, s := range sinks {
		if s == nil || n.isGlobal(s) {
			continue
		}
		if w, ok := n.workers[s]; ok {
			delete(n.workers, s)
			close(w.queue)
		}
	}
}

func (n *ProgressNotifier) isGlobal(s notifier.Sink) bool {
	for _, g := range n.global {
		if g == s {
			return true
		}
	}
	return false
}

func (n *ProgressNotifier) run(w *sinkWorker) {
	defer n.wg.Done()
	for ev := range w.queue {
		n.deliver(w.sink, ev)
	}
}

func (n *ProgressNotifier) deliver(s notifier.Sink, ev event.Progress) {
	ctx := context.Background()
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	if err := s.Notify(ctx, ev); err != nil {
		slog.Warn("progress delivery failed",
			"sink", s.Name(), "session_id", ev.SessionID, "event", ev.Event, "error", err)
		return
	}
	slog.Debug("progress delivered", "sink", s.Name(), "session_id", ev.SessionID, "event", ev.Event)
}

// Close stops accepting events and waits until queued ones are delivered.
func (n *ProgressNotifier) Close() {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		for s, w := range n.workers {
			delete(n.workers, s)
			close(w.queue)
		}
	}
	n.mu.Unlock()
	n.wg.Wait()
}

// SinkCount returns the number of global sinks.
func (n *ProgressNotifier) SinkCount() int {
	return len(n.global)
}
