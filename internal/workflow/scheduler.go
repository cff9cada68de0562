package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"reel/internal/config"
	"reel/internal/logging"
	"reel/internal/metrics"
	"reel/internal/queue"
)

// gateSet bounds stage concurrency across recordings. Each stage gets a
// semaphore sized from its configured slot count; zero slots means
// unbounded. A nil gateSet admits everything.
type gateSet struct {
	slots map[string]chan struct{}
}

func newGateSet(w config.Workflow) *gateSet {
	g := &gateSet{slots: make(map[string]chan struct{}, 5)}
	add := func(stage string, n int) {
		if n > 0 {
			g.slots[stage] = make(chan struct{}, n)
		}
	}
	add(queue.StageAcquire, w.AcquireSlots)
	add(queue.StageTranscode, w.TranscodeSlots)
	add(queue.StageTranscribe, w.TranscribeSlots)
	add(queue.StageTranslate, w.TranslateSlots)
	add(queue.StagePublish, w.PublishSlots)
	return g
}

// acquire blocks until a slot frees up or ctx ends. The returned release
// func is always safe to call.
func (g *gateSet) acquire(ctx context.Context, stage string) (func(), error) {
	if g == nil {
		return func() {}, nil
	}
	sem, ok := g.slots[stage]
	if !ok {
		return func() {}, nil
	}
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	}
}

// Scheduler fans a batch of recordings out to orchestrator goroutines, one
// per recording with no global cap; the per-stage gates are the only
// concurrency bound. An in-process in-flight set keeps a recording from
// being handed to two passes at once when batches overlap.
type Scheduler struct {
	orch    *Orchestrator
	logger  *slog.Logger
	metrics metrics.Sink

	progress chan<- Outcome

	mu       sync.Mutex
	inFlight map[int64]struct{}
}

// NewScheduler builds a scheduler over orch.
func NewScheduler(orch *Orchestrator, logger *slog.Logger, sink metrics.Sink) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	return &Scheduler{
		orch:     orch,
		logger:   logging.NewComponentLogger(logger, "scheduler"),
		metrics:  sink,
		inFlight: make(map[int64]struct{}),
	}
}

// SetProgressSink registers an optional channel receiving per-recording
// outcomes as they land. Sends never block; a slow consumer just misses
// updates.
func (s *Scheduler) SetProgressSink(ch chan<- Outcome) {
	s.progress = ch
}

// RunBatch processes every recording concurrently and returns one outcome
// per input, in input order. A failure on one recording never short-circuits
// the rest of the batch. Recordings already in flight from an overlapping
// batch come back as no-ops.
func (s *Scheduler) RunBatch(ctx context.Context, recs []*queue.Recording) []Outcome {
	outcomes := make([]Outcome, len(recs))
	started := time.Now()
	s.metrics.BatchStarted(len(recs))

	var wg sync.WaitGroup
	for i, rec := range recs {
		if !s.claim(rec.ID) {
			outcomes[i] = Outcome{RecordingID: rec.ID, UID: rec.UID, Title: rec.Title, Account: rec.Account, Initial: rec.Status, Final: rec.Status, NoOp: true}
			continue
		}
		wg.Add(1)
		go func(i int, rec *queue.Recording) {
			defer wg.Done()
			defer s.release(rec.ID)
			outcome := s.orch.Run(ctx, rec)
			outcomes[i] = outcome
			s.report(outcome)
		}(i, rec)
	}
	wg.Wait()

	succeeded, failed := 0, 0
	for _, outcome := range outcomes {
		switch {
		case outcome.Err != nil && !outcome.Canceled:
			failed++
		case outcome.Succeeded():
			succeeded++
		}
	}
	s.metrics.BatchCompleted(time.Since(started), succeeded, failed)
	return outcomes
}

// InFlight reports how many recordings are currently claimed.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

func (s *Scheduler) claim(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	s.metrics.RecordingsInFlight(len(s.inFlight))
	return true
}

func (s *Scheduler) release(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
	s.metrics.RecordingsInFlight(len(s.inFlight))
}

func (s *Scheduler) report(outcome Outcome) {
	if s.progress == nil {
		return
	}
	select {
	case s.progress <- outcome:
	default:
	}
}
