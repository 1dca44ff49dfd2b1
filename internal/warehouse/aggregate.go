package warehouse

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkarlin/listening-insights/internal/insights"
)

// The fixed catalog of aggregate queries. Each takes only the sanitized
// workspace identifier as its %s parameter. Row limits are deliberate
// constants bounding response size, not tunables. Time-based cuts exclude
// rows without a timestamp.
const (
	queryTopArtistsByPlayCount = `
		SELECT master_metadata_album_artist_name AS artist,
		       COUNT(*) AS total_plays
		FROM %s
		GROUP BY artist
		ORDER BY total_plays DESC
		LIMIT 100`

	queryTopAlbumsByPlayCount = `
		SELECT master_metadata_album_album_name AS album,
		       COUNT(*) AS total_plays
		FROM %s
		GROUP BY album
		ORDER BY total_plays DESC
		LIMIT 20`

	queryTopTracksByPlayCount = `
		SELECT master_metadata_track_name AS track,
		       COUNT(*) AS total_plays,
		       ARRAY_AGG(DISTINCT spotify_track_uri) AS track_uris
		FROM %s
		GROUP BY track
		ORDER BY total_plays DESC
		LIMIT 100`

	queryTopArtistsByMinutesPlayed = `
		SELECT master_metadata_album_artist_name AS artist,
		       SUM(ms_played)::double precision / 60000 AS minutes_played
		FROM %s
		GROUP BY artist
		ORDER BY minutes_played DESC
		LIMIT 100`

	queryTopAlbumsByMinutesPlayed = `
		SELECT master_metadata_album_album_name AS album,
		       SUM(ms_played)::double precision / 60000 AS minutes_played
		FROM %s
		GROUP BY album
		ORDER BY minutes_played DESC
		LIMIT 20`

	queryTopTracksByMinutesPlayed = `
		SELECT master_metadata_track_name AS track,
		       SUM(ms_played)::double precision / 60000 AS minutes_played,
		       ARRAY_AGG(DISTINCT spotify_track_uri) AS track_uris
		FROM %s
		GROUP BY track
		ORDER BY minutes_played DESC
		LIMIT 100`

	queryTopArtistsByYear = `
		SELECT master_metadata_album_artist_name AS artist,
		       EXTRACT(YEAR FROM ts)::int AS year,
		       COUNT(*) AS total_plays
		FROM %s
		WHERE ts IS NOT NULL
		GROUP BY artist, year
		ORDER BY total_plays DESC
		LIMIT 50`

	queryTopArtistsByYearAndMinutesPlayed = `
		SELECT master_metadata_album_artist_name AS artist,
		       EXTRACT(YEAR FROM ts)::int AS year,
		       SUM(ms_played)::double precision / 60000 AS minutes_played
		FROM %s
		WHERE ts IS NOT NULL
		GROUP BY artist, year
		ORDER BY minutes_played DESC
		LIMIT 50`

	queryTopTracksByYearMonthPlayCount = `
		SELECT master_metadata_track_name AS track,
		       EXTRACT(YEAR FROM ts)::int AS year,
		       EXTRACT(MONTH FROM ts)::int AS month,
		       COUNT(*) AS total_plays,
		       ARRAY_AGG(DISTINCT spotify_track_uri) AS track_uris
		FROM %s
		WHERE ts IS NOT NULL
		GROUP BY track, year, month
		ORDER BY total_plays DESC
		LIMIT 50`

	queryTopTracksByYearMonthMinutesPlayed = `
		SELECT master_metadata_track_name AS track,
		       EXTRACT(YEAR FROM ts)::int AS year,
		       EXTRACT(MONTH FROM ts)::int AS month,
		       SUM(ms_played)::double precision / 60000 AS minutes_played,
		       ARRAY_AGG(DISTINCT spotify_track_uri) AS track_uris
		FROM %s
		WHERE ts IS NOT NULL
		GROUP BY track, year, month
		ORDER BY minutes_played DESC
		LIMIT 50`

	queryListeningTimeByDayOfWeek = `
		SELECT EXTRACT(DOW FROM ts)::int AS day_of_week,
		       SUM(ms_played)::double precision / 60000 AS minutes_played
		FROM %s
		WHERE ts IS NOT NULL
		GROUP BY day_of_week
		ORDER BY minutes_played DESC`

	queryListeningTimeByHourOfDay = `
		SELECT EXTRACT(HOUR FROM ts)::int AS hour_of_day,
		       SUM(ms_played)::double precision / 60000 AS minutes_played
		FROM %s
		WHERE ts IS NOT NULL
		GROUP BY hour_of_day
		ORDER BY minutes_played DESC`

	queryBasicInsights = `
		SELECT COUNT(*) AS total_records,
		       COUNT(DISTINCT username) AS unique_users,
		       COALESCE(AVG(ms_played), 0)::double precision AS avg_play_time,
		       MIN(ts) AS first_play,
		       MAX(ts) AS last_play
		FROM %s`
)

// Aggregator executes the fixed battery of aggregate queries against a
// workspace.
type Aggregator struct {
	pool *pgxpool.Pool
}

// Aggregate runs the full catalog against the workspace and returns one
// document with every result set populated. A workspace with zero matching
// rows for a cut yields an empty result set, not an error. Any query
// failure (including a missing workspace) returns ErrAggregation.
func (a *Aggregator) Aggregate(ctx context.Context, key string) (*insights.Document, error) {
	ident := tableIdent(key)
	doc := insights.NewDocument()

	var err error
	if doc.TopArtistsByPlayCount, err = queryInto[insights.ArtistPlays](ctx, a.pool, queryTopArtistsByPlayCount, ident); err != nil {
		return nil, fmt.Errorf("%w: topArtistsByPlayCount: %w", ErrAggregation, err)
	}
	if doc.TopAlbumsByPlayCount, err = queryInto[insights.AlbumPlays](ctx, a.pool, queryTopAlbumsByPlayCount, ident); err != nil {
		return nil, fmt.Errorf("%w: topAlbumsByPlayCount: %w", ErrAggregation, err)
	}
	if doc.TopTracksByPlayCount, err = queryInto[insights.TrackPlays](ctx, a.pool, queryTopTracksByPlayCount, ident); err != nil {
		return nil, fmt.Errorf("%w: topTracksByPlayCount: %w", ErrAggregation, err)
	}
	if doc.TopArtistsByMinutesPlayed, err = queryInto[insights.ArtistMinutes](ctx, a.pool, queryTopArtistsByMinutesPlayed, ident); err != nil {
		return nil, fmt.Errorf("%w: topArtistsByMinutesPlayed: %w", ErrAggregation, err)
	}
	if doc.TopAlbumsByMinutesPlayed, err = queryInto[insights.AlbumMinutes](ctx, a.pool, queryTopAlbumsByMinutesPlayed, ident); err != nil {
		return nil, fmt.Errorf("%w: topAlbumsByMinutesPlayed: %w", ErrAggregation, err)
	}
	if doc.TopTracksByMinutesPlayed, err = queryInto[insights.TrackMinutes](ctx, a.pool, queryTopTracksByMinutesPlayed, ident); err != nil {
		return nil, fmt.Errorf("%w: topTracksByMinutesPlayed: %w", ErrAggregation, err)
	}
	if doc.TopArtistsByYear, err = queryInto[insights.ArtistYearPlays](ctx, a.pool, queryTopArtistsByYear, ident); err != nil {
		return nil, fmt.Errorf("%w: topArtistsByYear: %w", ErrAggregation, err)
	}
	if doc.TopArtistsByYearAndMinutesPlayed, err = queryInto[insights.ArtistYearMinutes](ctx, a.pool, queryTopArtistsByYearAndMinutesPlayed, ident); err != nil {
		return nil, fmt.Errorf("%w: topArtistsByYearAndMinutesPlayed: %w", ErrAggregation, err)
	}
	if doc.TopTracksByYearMonthPlayCount, err = queryInto[insights.TrackMonthPlays](ctx, a.pool, queryTopTracksByYearMonthPlayCount, ident); err != nil {
		return nil, fmt.Errorf("%w: topTracksByYearMonthPlayCount: %w", ErrAggregation, err)
	}
	if doc.TopTracksByYearMonthMinutesPlayed, err = queryInto[insights.TrackMonthMinutes](ctx, a.pool, queryTopTracksByYearMonthMinutesPlayed, ident); err != nil {
		return nil, fmt.Errorf("%w: topTracksByYearMonthMinutesPlayed: %w", ErrAggregation, err)
	}
	if doc.ListeningTimeByDayOfWeek, err = queryInto[insights.DayOfWeekMinutes](ctx, a.pool, queryListeningTimeByDayOfWeek, ident); err != nil {
		return nil, fmt.Errorf("%w: listeningTimeByDayOfWeek: %w", ErrAggregation, err)
	}
	if doc.ListeningTimeByHourOfDay, err = queryInto[insights.HourMinutes](ctx, a.pool, queryListeningTimeByHourOfDay, ident); err != nil {
		return nil, fmt.Errorf("%w: listeningTimeByHourOfDay: %w", ErrAggregation, err)
	}

	summary, err := a.basicInsights(ctx, ident)
	if err != nil {
		return nil, fmt.Errorf("%w: basicInsights: %w", ErrAggregation, err)
	}
	doc.BasicInsights = summary

	return doc, nil
}

// basicInsights runs the whole-workspace summary query.
func (a *Aggregator) basicInsights(ctx context.Context, ident string) (insights.Summary, error) {
	var s insights.Summary
	err := a.pool.QueryRow(ctx, fmt.Sprintf(queryBasicInsights, ident)).Scan(
		&s.TotalRecords,
		&s.UniqueUsers,
		&s.AvgPlayTime,
		&s.FirstPlay,
		&s.LastPlay,
	)
	if err != nil {
		return insights.Summary{}, err
	}
	return s, nil
}

// queryInto runs one catalog query against the workspace identifier and
// scans all rows positionally into T. Returns an empty, non-nil slice when
// the query matches no rows.
func queryInto[T any](ctx context.Context, pool *pgxpool.Pool, query, ident string) ([]T, error) {
	rows, err := pool.Query(ctx, fmt.Sprintf(query, ident))
	if err != nil {
		return nil, err
	}

	results, err := pgx.CollectRows(rows, pgx.RowToStructByPos[T])
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []T{}
	}
	return results, nil
}
