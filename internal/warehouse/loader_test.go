package warehouse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mkarlin/listening-insights/internal/events"
)

func newTestLoader(batchSize int, insert batchInsertFunc) *Loader {
	return &Loader{
		logger:    log.New(io.Discard),
		batchSize: batchSize,
		insert:    insert,
		sleep:     func(ctx context.Context, d time.Duration) error { return nil },
	}
}

func makeRows(n int) []events.Event {
	rows := make([]events.Event, n)
	for i := range rows {
		rows[i] = events.Event{TrackName: fmt.Sprintf("track-%d", i)}
	}
	return rows
}

func TestLoadChunking(t *testing.T) {
	tests := []struct {
		name        string
		totalRows   int
		batchSize   int
		wantBatches []int // offset of each expected batch
		wantSizes   []int
	}{
		{"empty", 0, 100, nil, nil},
		{"single partial batch", 50, 100, []int{0}, []int{50}},
		{"exact batch", 100, 100, []int{0}, []int{100}},
		{"multiple batches with remainder", 250, 100, []int{0, 100, 200}, []int{100, 100, 50}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var offsets, sizes []int
			next := 0
			loader := newTestLoader(tt.batchSize, func(ctx context.Context, key string, rows []events.Event) error {
				offsets = append(offsets, next)
				sizes = append(sizes, len(rows))
				next += len(rows)
				return nil
			})

			if err := loader.Load(context.Background(), "ws", makeRows(tt.totalRows)); err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			if len(offsets) != len(tt.wantBatches) {
				t.Fatalf("got %d batches, want %d", len(offsets), len(tt.wantBatches))
			}
			for i := range offsets {
				if offsets[i] != tt.wantBatches[i] || sizes[i] != tt.wantSizes[i] {
					t.Errorf("batch %d = offset %d size %d, want offset %d size %d",
						i, offsets[i], sizes[i], tt.wantBatches[i], tt.wantSizes[i])
				}
			}
		})
	}
}

func TestLoadRetrySucceedsWithinBound(t *testing.T) {
	attempts := 0
	loader := newTestLoader(10, func(ctx context.Context, key string, rows []events.Event) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient insert failure")
		}
		return nil
	})

	if err := loader.Load(context.Background(), "ws", makeRows(5)); err != nil {
		t.Fatalf("Load() error = %v, want success on third attempt", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestLoadRetryExhaustionAbortsRemainingBatches(t *testing.T) {
	cause := errors.New("persistent insert failure")
	calls := 0
	failFrom := 10 // second batch
	loader := newTestLoader(10, func(ctx context.Context, key string, rows []events.Event) error {
		calls++
		if calls > 1 {
			return cause
		}
		return nil
	})

	err := loader.Load(context.Background(), "ws", makeRows(35))

	var ingErr *IngestError
	if !errors.As(err, &ingErr) {
		t.Fatalf("Load() error = %v, want *IngestError", err)
	}
	if ingErr.Offset != failFrom {
		t.Errorf("Offset = %d, want %d", ingErr.Offset, failFrom)
	}
	if !errors.Is(err, cause) {
		t.Error("IngestError does not wrap the insert cause")
	}
	// 1 success + 3 failed attempts on the second batch, nothing after.
	if calls != 4 {
		t.Errorf("insert calls = %d, want 4 (remaining batches must be abandoned)", calls)
	}
}

func TestLoadStopsWhenContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	loader := newTestLoader(10, func(ctx context.Context, key string, rows []events.Event) error {
		return errors.New("insert failure")
	})
	loader.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	err := loader.Load(ctx, "ws", makeRows(10))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled in chain", err)
	}
}
