package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mkarlin/listening-insights/internal/events"
)

const (
	// DefaultBatchSize bounds the rows per insert request.
	DefaultBatchSize = 1000

	// maxInsertAttempts is the per-batch attempt bound.
	maxInsertAttempts = 3

	// retryDelay is the fixed delay between attempts on one batch.
	retryDelay = time.Second
)

// workspaceColumns is the insert column order, matching workspaceSchema.
var workspaceColumns = []string{
	"ts", "username", "platform", "ms_played", "conn_country",
	"ip_addr_decrypted", "user_agent_decrypted",
	"master_metadata_track_name", "master_metadata_album_artist_name",
	"master_metadata_album_album_name", "spotify_track_uri",
	"episode_name", "episode_show_name", "spotify_episode_uri",
	"reason_start", "reason_end",
	"shuffle", "skipped", "offline", "offline_timestamp", "incognito_mode",
}

// IngestError reports a batch that could not be inserted after exhausting
// its retries. Offset is the index of the batch's first row within the
// upload's row sequence.
type IngestError struct {
	Offset int
	Err    error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingesting batch at offset %d: %v", e.Offset, e.Err)
}

func (e *IngestError) Unwrap() error {
	return e.Err
}

// batchInsertFunc inserts one batch of rows into a workspace.
type batchInsertFunc func(ctx context.Context, key string, rows []events.Event) error

// Loader streams normalized events into a workspace in bounded batches with
// bounded per-batch retry.
type Loader struct {
	logger    *log.Logger
	batchSize int
	insert    batchInsertFunc
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewLoader creates a Loader writing through the given DB.
func NewLoader(db *DB, logger *log.Logger) *Loader {
	return &Loader{
		logger:    logger,
		batchSize: DefaultBatchSize,
		insert:    db.insertBatch,
		sleep:     sleepCtx,
	}
}

// Load inserts rows into the workspace in batches. Each batch is attempted
// up to maxInsertAttempts times with retryDelay between attempts; once a
// batch exhausts its retries the remaining batches are abandoned and an
// IngestError carrying the batch offset is returned. Batches already
// inserted stay visible — ingestion is at-least-once, not atomic, and the
// caller must treat the session as failed.
func (l *Loader) Load(ctx context.Context, key string, rows []events.Event) error {
	runID := uuid.NewString()
	logger := l.logger.With("workspace", key, "run", runID)

	for offset := 0; offset < len(rows); offset += l.batchSize {
		end := min(offset+l.batchSize, len(rows))
		batch := rows[offset:end]

		if err := l.loadBatch(ctx, logger, key, offset, batch); err != nil {
			return err
		}
		logger.Debug("batch inserted", "offset", offset, "rows", len(batch))
	}
	return nil
}

// loadBatch inserts one batch with bounded retry.
func (l *Loader) loadBatch(ctx context.Context, logger *log.Logger, key string, offset int, batch []events.Event) error {
	var lastErr error
	for attempt := 1; attempt <= maxInsertAttempts; attempt++ {
		if attempt > 1 {
			if err := l.sleep(ctx, retryDelay); err != nil {
				return &IngestError{Offset: offset, Err: err}
			}
		}

		lastErr = l.insert(ctx, key, batch)
		if lastErr == nil {
			return nil
		}
		logger.Warn("batch insert failed",
			"offset", offset, "attempt", attempt, "err", lastErr)
	}
	return &IngestError{Offset: offset, Err: lastErr}
}

// insertBatch bulk-copies one batch of events into the workspace table.
func (db *DB) insertBatch(ctx context.Context, key string, rows []events.Event) error {
	src := pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		e := rows[i]
		return []any{
			e.Timestamp, e.Username, e.Platform, e.MsPlayed, e.ConnCountry,
			e.IPAddr, e.UserAgent,
			e.TrackName, e.ArtistName, e.AlbumName, e.TrackURI,
			e.EpisodeName, e.EpisodeShowName, e.EpisodeURI,
			e.ReasonStart, e.ReasonEnd,
			e.Shuffle, e.Skipped, e.Offline, e.OfflineTimestamp, e.IncognitoMode,
		}, nil
	})

	if _, err := db.pool.CopyFrom(ctx, pgx.Identifier{schemaName, key}, workspaceColumns, src); err != nil {
		return fmt.Errorf("copying rows into %s: %w", key, err)
	}
	return nil
}

// sleepCtx sleeps for d unless ctx is canceled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
