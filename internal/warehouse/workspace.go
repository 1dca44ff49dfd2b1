package warehouse

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// readyPollInterval is how often provisioning re-checks that a freshly
	// created workspace is visible for writes.
	readyPollInterval = 500 * time.Millisecond

	// readyWaitTimeout bounds the total wait for workspace readiness.
	readyWaitTimeout = 15 * time.Second
)

// workspaceSchema is the fixed column layout of a workspace table, matching
// the normalized event schema.
const workspaceSchema = `(
	ts                                timestamptz,
	username                          text,
	platform                          text,
	ms_played                         bigint,
	conn_country                      text,
	ip_addr_decrypted                 text,
	user_agent_decrypted              text,
	master_metadata_track_name        text,
	master_metadata_album_artist_name text,
	master_metadata_album_album_name  text,
	spotify_track_uri                 text,
	episode_name                      text,
	episode_show_name                 text,
	spotify_episode_uri               text,
	reason_start                      text,
	reason_end                        text,
	shuffle                           boolean,
	skipped                           boolean,
	offline                           boolean,
	offline_timestamp                 timestamptz,
	incognito_mode                    boolean
)`

var keySanitizer = strings.NewReplacer("@", "_", ".", "_")

// maxKeyPrefixLen bounds the readable prefix so that prefix, separator,
// and the 8-hex-digit suffix together never exceed PostgreSQL's 63-byte
// identifier limit. Without the bound, long identities sharing a prefix
// would be silently truncated onto the same table name.
const maxKeyPrefixLen = 54

// KeyFor derives the workspace key for a user identity. The key is a pure
// function of the case-normalized identity: a readable sanitized prefix
// plus a short hash suffix that keeps distinct identities collision-free
// even when sanitization or truncation folds their characters together.
func KeyFor(identity string) string {
	normalized := strings.ToLower(strings.TrimSpace(identity))
	sum := sha256.Sum256([]byte(normalized))
	prefix := keySanitizer.Replace(normalized)
	if len(prefix) > maxKeyPrefixLen {
		prefix = prefix[:maxKeyPrefixLen]
	}
	return prefix + "_" + hex.EncodeToString(sum[:4])
}

// tableProbeFunc reports whether the workspace table for key is visible.
type tableProbeFunc func(ctx context.Context, key string) (bool, error)

// WorkspaceManager owns the lifecycle of per-session workspace tables.
type WorkspaceManager struct {
	pool  *pgxpool.Pool
	probe tableProbeFunc
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// Provision creates a fresh, empty workspace for the identity and returns
// its key. Any existing workspace for the same identity is dropped first so
// data from an abandoned session never mixes into the new one. Provision
// blocks until the new table is confirmed visible for writes.
func (m *WorkspaceManager) Provision(ctx context.Context, identity string) (string, error) {
	key := KeyFor(identity)
	ident := tableIdent(key)

	if _, err := m.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, ident)); err != nil {
		return "", fmt.Errorf("%w: dropping stale workspace: %w", ErrProvisioning, err)
	}
	if _, err := m.pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE %s %s`, ident, workspaceSchema)); err != nil {
		return "", fmt.Errorf("%w: creating workspace: %w", ErrProvisioning, err)
	}
	if err := m.waitReady(ctx, key); err != nil {
		return "", err
	}
	return key, nil
}

// waitReady polls until the workspace table is visible, bounded by
// readyWaitTimeout. The backing store is assumed eventually consistent, so
// a successful CREATE is not taken as proof the table accepts writes yet.
func (m *WorkspaceManager) waitReady(ctx context.Context, key string) error {
	deadline := m.now().Add(readyWaitTimeout)

	for {
		ready, err := m.probe(ctx, key)
		if err != nil {
			return fmt.Errorf("%w: checking workspace readiness: %w", ErrProvisioning, err)
		}
		if ready {
			return nil
		}

		if m.now().After(deadline) {
			return fmt.Errorf("%w: workspace %s not ready after %s", ErrProvisioning, key, readyWaitTimeout)
		}
		if err := m.sleep(ctx, readyPollInterval); err != nil {
			return fmt.Errorf("%w: %w", ErrProvisioning, err)
		}
	}
}

// workspaceExists checks the system catalog for the workspace table. The
// schema and table names are matched as plain strings, so keys that would
// need quoting as identifiers (hyphens, leading digits) resolve the same
// as any other.
func (db *DB) workspaceExists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_catalog.pg_tables
			WHERE schemaname = $1 AND tablename = $2
		)`, schemaName, key).Scan(&exists)
	return exists, err
}

// Teardown drops the workspace table. Dropping a workspace that does not
// exist is not an error, so Teardown is safe to call on every session exit
// path.
func (m *WorkspaceManager) Teardown(ctx context.Context, key string) error {
	if _, err := m.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, tableIdent(key))); err != nil {
		return fmt.Errorf("dropping workspace %s: %w", key, err)
	}
	return nil
}
