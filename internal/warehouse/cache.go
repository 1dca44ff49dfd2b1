package warehouse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkarlin/listening-insights/internal/insights"
)

const (
	insightsTable = "insights"

	// cacheContentType is the fixed content type stored with every cached
	// document.
	cacheContentType = "application/json"
)

func insightsTableIdent() string {
	return pgx.Identifier{schemaName, insightsTable}.Sanitize()
}

// InsightsCache persists the latest insights document per user identity.
type InsightsCache struct {
	pool *pgxpool.Pool
}

// Put serializes and stores the document at the workspace key, overwriting
// any existing entry. Only the latest document per identity is kept.
func (c *InsightsCache) Put(ctx context.Context, key string, doc *insights.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding insights document: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (user_key, content_type, document, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_key)
		DO UPDATE SET content_type = EXCLUDED.content_type,
		              document = EXCLUDED.document,
		              updated_at = EXCLUDED.updated_at
	`, insightsTableIdent())

	if _, err := c.pool.Exec(ctx, query, key, cacheContentType, data, time.Now().UTC()); err != nil {
		return fmt.Errorf("storing insights for %s: %w", key, err)
	}
	return nil
}

// Get retrieves the cached document stored at the workspace key. Returns
// ErrNotFound when no document has been cached for the identity; any other
// failure is a storage error.
func (c *InsightsCache) Get(ctx context.Context, key string) (*insights.Document, error) {
	query := fmt.Sprintf(`SELECT document FROM %s WHERE user_key = $1`, insightsTableIdent())

	var data []byte
	err := c.pool.QueryRow(ctx, query, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying insights for %s: %w", key, err)
	}

	var doc insights.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding insights for %s: %w", key, err)
	}
	return &doc, nil
}
