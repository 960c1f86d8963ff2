package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/accounts/internal/core/ports"
)

// ProfileStore is a ports.DataStore keeping one JSONB document per path.
// Reading a path with no document of its own assembles its descendants.
type ProfileStore struct {
	pool   *pgxpool.Pool
	tx     *TransactionManager
	logger *slog.Logger
}

var _ ports.DataStore = (*ProfileStore)(nil)

// NewProfileStore wraps an existing pool.
func NewProfileStore(pool *pgxpool.Pool, logger *slog.Logger) *ProfileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileStore{
		pool:   pool,
		tx:     NewTransactionManager(pool),
		logger: logger.With("component", "postgres_store"),
	}
}

// Open connects to connString, optionally migrating the schema first.
func Open(ctx context.Context, connString string, autoMigrate bool, logger *slog.Logger) (*ProfileStore, error) {
	if autoMigrate {
		if err := Migrate(connString); err != nil {
			return nil, err
		}
	}

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return NewProfileStore(pool, logger), nil
}

// SetValue replaces the subtree at ref with value.
func (s *ProfileStore) SetValue(ctx context.Context, ref ports.Reference, value map[string]any) error {
	path := ref.Key()
	doc, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		q := GetDBTX(ctx, s.pool)

		// 1. Drop descendants written separately
		if _, err := q.Exec(ctx, `DELETE FROM data_nodes WHERE path LIKE $1`, likePrefix(path+"/")); err != nil {
			return fmt.Errorf("clear subtree: %w", err)
		}

		// 2. Upsert the node itself
		_, err := q.Exec(ctx, `
			INSERT INTO data_nodes (path, value, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (path) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
			path, doc)
		if err != nil {
			return fmt.Errorf("upsert node: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.DebugContext(ctx, "node written", "path", path)
	return nil
}

// GetData returns the node at ref, or nil when nothing is stored there.
func (s *ProfileStore) GetData(ctx context.Context, ref ports.Reference) (any, error) {
	path := ref.Key()
	q := GetDBTX(ctx, s.pool)

	var doc []byte
	err := q.QueryRow(ctx, `SELECT value FROM data_nodes WHERE path = $1`, path).Scan(&doc)
	switch {
	case err == nil:
		var value any
		if err := json.Unmarshal(doc, &value); err != nil {
			return nil, fmt.Errorf("unmarshal node: %w", err)
		}
		return value, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("get node: %w", err)
	}

	return s.assembleChildren(ctx, q, path)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePrefix builds a LIKE pattern matching paths that start with prefix.
// Prefix patterns can use the text_pattern_ops index on path.
func likePrefix(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}

func (s *ProfileStore) assembleChildren(ctx context.Context, q DBTX, path string) (any, error) {
	prefix := path + "/"
	rows, err := q.Query(ctx, `SELECT path, value FROM data_nodes WHERE path LIKE $1 ORDER BY path`, likePrefix(prefix))
	if err != nil {
		return nil, fmt.Errorf("list subtree: %w", err)
	}
	defer rows.Close()

	var tree map[string]any
	for rows.Next() {
		var (
			childPath string
			doc       []byte
		)
		if err := rows.Scan(&childPath, &doc); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}

		var value any
		if err := json.Unmarshal(doc, &value); err != nil {
			return nil, fmt.Errorf("unmarshal node: %w", err)
		}

		if tree == nil {
			tree = make(map[string]any)
		}
		insertAt(tree, strings.Split(strings.TrimPrefix(childPath, prefix), "/"), value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subtree: %w", err)
	}

	if tree == nil {
		return nil, nil
	}
	return tree, nil
}

func insertAt(tree map[string]any, segments []string, value any) {
	node := tree
	for _, seg := range segments[:len(segments)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[seg] = child
		}
		node = child
	}
	node[segments[len(segments)-1]] = value
}

func (s *ProfileStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *ProfileStore) Close() error {
	s.pool.Close()
	return nil
}
