package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alecgard/gabelle/internal/pricing"
	"github.com/google/uuid"
)

// BatchInserter is the interface used by Recorder to persist records.
// It exists to allow testing without a real database.
type BatchInserter interface {
	BatchInsert(ctx context.Context, records []Record) error
}

// FlushObserver receives recorder instrumentation callbacks. A nil observer
// disables instrumentation.
type FlushObserver interface {
	SetBufferSize(n int)
	ObserveFlush(count int, d time.Duration, err error)
	IncRecorded()
}

// Recorder buffers usage records in memory and periodically flushes them to
// the store in batches. Recording never returns an error: persistence
// failures are logged and the batch is dropped, so usage tracking cannot
// abort the operation it is instrumenting. It is safe for concurrent use.
type Recorder struct {
	store         BatchInserter
	buffer        []Record
	mu            sync.Mutex
	batchSize     int
	flushInterval time.Duration
	done          chan struct{}
	observer      FlushObserver
	now           func() time.Time // injectable clock for testing
}

// NewRecorder creates a Recorder that flushes to the given store when the
// buffer reaches batchSize or every flushInterval, whichever comes first.
func NewRecorder(store BatchInserter, batchSize int, flushInterval time.Duration) *Recorder {
	return &Recorder{
		store:         store,
		buffer:        make([]Record, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
		now:           time.Now,
	}
}

// SetObserver attaches a FlushObserver. Must be called before Start.
func (r *Recorder) SetObserver(o FlushObserver) {
	r.observer = o
}

// Start begins a background goroutine that flushes buffered records on a
// timer. It blocks until Stop is called or the context is cancelled.
func (r *Recorder) Start(ctx context.Context) {
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.flush()
		case <-ctx.Done():
			r.flush()
			return
		case <-r.done:
			r.flush()
			return
		}
	}
}

// Record assembles a usage record from the input and adds it to the buffer.
// Total tokens and estimated cost are computed here, once, and never
// recomputed. If the buffer reaches batchSize, a flush is triggered
// immediately.
func (r *Recorder) Record(in RecordInput) {
	rec := Record{
		ID:               uuid.NewString(),
		UserID:           in.UserID,
		AssistantID:      in.AssistantID,
		ThreadID:         in.ThreadID,
		Model:            in.Model,
		PromptTokens:     in.PromptTokens,
		CompletionTokens: in.CompletionTokens,
		TotalTokens:      in.PromptTokens + in.CompletionTokens,
		EstimatedCost:    pricing.Cost(in.Model, in.PromptTokens, in.CompletionTokens),
		RequestType:      in.RequestType,
		Success:          in.Success,
		ErrorMessage:     in.ErrorMessage,
		Metadata:         in.Metadata,
		CreatedAt:        r.now().UTC(),
	}

	r.mu.Lock()
	r.buffer = append(r.buffer, rec)
	bufLen := len(r.buffer)
	r.mu.Unlock()

	if r.observer != nil {
		r.observer.IncRecorded()
		r.observer.SetBufferSize(bufLen)
	}

	if bufLen >= r.batchSize {
		r.flush()
	}
}

// flush drains all buffered records and writes them to the store. Errors are
// logged rather than returned; the failed batch is not retried.
func (r *Recorder) flush() {
	r.mu.Lock()
	if len(r.buffer) == 0 {
		r.mu.Unlock()
		return
	}
	batch := r.buffer
	r.buffer = make([]Record, 0, r.batchSize)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	err := r.store.BatchInsert(ctx, batch)
	if r.observer != nil {
		r.observer.ObserveFlush(len(batch), time.Since(start), err)
		r.observer.SetBufferSize(0)
	}
	if err != nil {
		slog.Error("failed to flush usage records", "count", len(batch), "error", err)
	}
}

// Stop signals the background goroutine to exit and performs a final flush.
func (r *Recorder) Stop() {
	close(r.done)
}
