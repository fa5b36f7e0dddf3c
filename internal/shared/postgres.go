package shared

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/jackc/pgx/v5"
)

// NotifyChannel is raised by the shared_documents trigger on every write.
const NotifyChannel = "agencyos_shared_documents"

// PostgresStore keeps the document as a JSONB row. Merge-upserts use the
// jsonb || operator, so fields outside the patch survive. Subscriptions
// hold a dedicated connection that LISTENs on NotifyChannel.
type PostgresStore struct {
	db  *sql.DB
	dsn string
}

func NewPostgresStore(db *sql.DB, dsn string) *PostgresStore {
	return &PostgresStore{db: db, dsn: dsn}
}

func (s *PostgresStore) UpsertMerge(ctx context.Context, patch Patch) error {
	fields, err := patch.Fields()
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO shared_documents (path, data)
		VALUES ($1, $2::jsonb)
		ON CONFLICT (path) DO UPDATE SET data = shared_documents.data || EXCLUDED.data, updated_at = NOW()
	`, Path, string(payload))
	if err != nil {
		return fmt.Errorf("upsert shared document: %w", err)
	}
	return nil
}

func (s *PostgresStore) Subscribe(ctx context.Context, onChange func(Document)) (Subscription, error) {
	conn, err := pgx.Connect(ctx, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("connect listener: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{NotifyChannel}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("listen %s: %w", NotifyChannel, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	go func() {
		defer conn.Close(context.Background())

		deliver := func() {
			doc, err := s.Read(subCtx)
			if err != nil {
				if subCtx.Err() == nil {
					log.Printf("shared: read document: %v", err)
				}
				return
			}
			if subCtx.Err() == nil {
				onChange(doc)
			}
		}

		deliver()
		for {
			notification, err := conn.WaitForNotification(subCtx)
			if err != nil {
				if subCtx.Err() == nil {
					log.Printf("shared: listener stopped: %v", err)
				}
				return
			}
			if notification.Payload != Path {
				continue
			}
			deliver()
		}
	}()

	var once sync.Once
	return subscriptionFunc(func() { once.Do(cancel) }), nil
}

// Read returns the current document, empty when no row exists.
func (s *PostgresStore) Read(ctx context.Context) (Document, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM shared_documents WHERE path = $1`, Path).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, nil
	}
	if err != nil {
		return Document{}, fmt.Errorf("read shared document: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return Document{}, fmt.Errorf("decode shared document: %w", err)
	}
	return DecodeFields(fields), nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
