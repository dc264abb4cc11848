package peerlist

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const schema = `CREATE TABLE IF NOT EXISTS rendezvous_peers (
	topic      TEXT NOT NULL,
	addr       TEXT NOT NULL,
	last_seen  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (topic, addr)
)`

// PostgresStore shares registrations between bootstrap replicas.
type PostgresStore struct {
	db       *sql.DB
	expireIn time.Duration
}

// OpenPostgres connects with the pgx driver and ensures the schema.
func OpenPostgres(ctx context.Context, dsn string, expireIn time.Duration) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	store := NewPostgresStore(db, expireIn)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore wraps an existing handle.
func NewPostgresStore(db *sql.DB, expireIn time.Duration) *PostgresStore {
	return &PostgresStore{db: db, expireIn: expireIn}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Register(ctx context.Context, topic, addr string) error {
	if err := validate(topic, addr); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rendezvous_peers (topic, addr, last_seen) VALUES ($1, $2, now())
		 ON CONFLICT (topic, addr) DO UPDATE SET last_seen = EXCLUDED.last_seen`,
		topic, addr)
	if err != nil {
		return fmt.Errorf("register peer: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, topic string) ([]string, error) {
	if s.expireIn > 0 {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM rendezvous_peers WHERE topic = $1 AND last_seen < $2`,
			topic, time.Now().Add(-s.expireIn)); err != nil {
			return nil, fmt.Errorf("prune peers: %w", err)
		}
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT addr FROM rendezvous_peers WHERE topic = $1 ORDER BY addr`, topic)
	if err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}
	defer rows.Close()
	addrs := []string{}
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return addrs, rows.Err()
}

func (s *PostgresStore) Remove(ctx context.Context, topic, addr string) error {
	if err := validate(topic, addr); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM rendezvous_peers WHERE topic = $1 AND addr = $2`, topic, addr); err != nil {
		return fmt.Errorf("remove peer: %w", err)
	}
	return nil
}
