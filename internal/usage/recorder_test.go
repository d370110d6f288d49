package usage

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"
)

// mockStore records all batches that were inserted.
type mockStore struct {
	mu       sync.Mutex
	batches  [][]Record
	insertFn func(ctx context.Context, records []Record) error
}

func (m *mockStore) BatchInsert(ctx context.Context, records []Record) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, records)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Record, len(records))
	copy(cp, records)
	m.batches = append(m.batches, cp)
	return nil
}

func (m *mockStore) totalInserted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func (m *mockStore) allRecords() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

func sampleInput(model string) RecordInput {
	return RecordInput{
		UserID:           "user-1",
		RequestType:      "chat_completion",
		Model:            model,
		PromptTokens:     1000,
		CompletionTokens: 500,
		Success:          true,
	}
}

func TestRecorder_ComputesDerivedFields(t *testing.T) {
	ms := &mockStore{}
	r := NewRecorder(ms, 1, time.Hour) // batch size 1 flushes immediately

	r.Record(sampleInput("gpt-4o"))
	time.Sleep(50 * time.Millisecond)

	records := ms.allRecords()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]

	if rec.ID == "" {
		t.Error("expected record id to be assigned")
	}
	if rec.CreatedAt.IsZero() {
		t.Error("expected created_at to be assigned")
	}
	if rec.TotalTokens != rec.PromptTokens+rec.CompletionTokens {
		t.Errorf("total tokens %d != prompt %d + completion %d",
			rec.TotalTokens, rec.PromptTokens, rec.CompletionTokens)
	}
	if math.Abs(rec.EstimatedCost-0.0125) > 1e-9 {
		t.Errorf("expected cost 0.0125, got %v", rec.EstimatedCost)
	}
}

func TestRecorder_AddsToBuffer(t *testing.T) {
	ms := &mockStore{}
	r := NewRecorder(ms, 100, time.Hour) // large batch size, long interval

	r.Record(sampleInput("gpt-4o"))
	r.Record(sampleInput("gpt-4o"))

	r.mu.Lock()
	bufLen := len(r.buffer)
	r.mu.Unlock()

	if bufLen != 2 {
		t.Fatalf("expected buffer length 2, got %d", bufLen)
	}
	if ms.totalInserted() != 0 {
		t.Fatalf("expected 0 inserted before flush, got %d", ms.totalInserted())
	}
}

func TestRecorder_FlushOnBatchSize(t *testing.T) {
	tests := []struct {
		name      string
		batchSize int
		records   int
		wantFlush int
	}{
		{
			name:      "exact batch size triggers flush",
			batchSize: 3,
			records:   3,
			wantFlush: 3,
		},
		{
			name:      "under batch size does not flush",
			batchSize: 5,
			records:   3,
			wantFlush: 0,
		},
		{
			name:      "double batch size triggers two flushes",
			batchSize: 2,
			records:   4,
			wantFlush: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := &mockStore{}
			r := NewRecorder(ms, tt.batchSize, time.Hour)

			for i := 0; i < tt.records; i++ {
				r.Record(sampleInput("gpt-4o"))
			}

			// Allow any concurrent flush goroutine to complete.
			time.Sleep(50 * time.Millisecond)

			got := ms.totalInserted()
			if got != tt.wantFlush {
				t.Errorf("expected %d flushed records, got %d", tt.wantFlush, got)
			}
		})
	}
}

func TestRecorder_StopDoesFinalFlush(t *testing.T) {
	ms := &mockStore{}
	r := NewRecorder(ms, 100, time.Hour)

	done := make(chan struct{})
	go func() {
		r.Start(context.Background())
		close(done)
	}()

	r.Record(sampleInput("gpt-4o"))
	r.Record(sampleInput("gpt-4o"))

	r.Stop()
	<-done

	if ms.totalInserted() != 2 {
		t.Fatalf("expected 2 records flushed on stop, got %d", ms.totalInserted())
	}
}

func TestRecorder_InsertErrorIsSwallowed(t *testing.T) {
	ms := &mockStore{
		insertFn: func(ctx context.Context, records []Record) error {
			return errors.New("db unavailable")
		},
	}
	r := NewRecorder(ms, 1, time.Hour)

	// Must not panic or block; the error is logged and the batch dropped.
	r.Record(sampleInput("gpt-4o"))
	time.Sleep(50 * time.Millisecond)

	r.mu.Lock()
	bufLen := len(r.buffer)
	r.mu.Unlock()
	if bufLen != 0 {
		t.Errorf("expected buffer drained after failed flush, got %d", bufLen)
	}
}

func TestRecorder_FailureRecordKeepsErrorMessage(t *testing.T) {
	ms := &mockStore{}
	r := NewRecorder(ms, 1, time.Hour)

	in := sampleInput("gpt-4o")
	in.Success = false
	in.ErrorMessage = "rate limit exceeded"
	r.Record(in)
	time.Sleep(50 * time.Millisecond)

	records := ms.allRecords()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Success {
		t.Error("expected success=false")
	}
	if records[0].ErrorMessage != "rate limit exceeded" {
		t.Errorf("unexpected error message %q", records[0].ErrorMessage)
	}
	// Cost is computed for failures too.
	if records[0].EstimatedCost == 0 {
		t.Error("expected non-zero cost on failed record")
	}
}
