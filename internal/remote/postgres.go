package remote

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/binlift/binlift/internal/dbx"
	"github.com/binlift/binlift/internal/models"
	"github.com/binlift/binlift/internal/remote/migrations"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store against PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to the remote database and verifies the
// connection.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping remote store: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreWithDB wraps an existing handle. Used by tests.
func NewPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// RunMigrations applies the embedded goose migrations to the remote schema.
func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, s.db, ".")
}

// Close releases the underlying pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// GetOwnerCollection returns the owner's current item set keyed by id.
func (s *PostgresStore) GetOwnerCollection(ctx context.Context, ownerID string) (map[string]models.RemoteRecord, error) {
	query := `SELECT id, owner_id, kind, weight_kg, value_cents, description, attachment_ref, created_at
			FROM waste_items WHERE owner_id=$1`
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to select owner collection: %w", err)
	}
	defer rows.Close()

	result := make(map[string]models.RemoteRecord)
	for rows.Next() {
		var item models.RemoteRecord
		var kind string
		if err := rows.Scan(&item.ID, &item.OwnerID, &kind, &item.WeightKg,
			&item.ValueCents, &item.Description, &item.AttachmentRef, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.Kind = models.Kind(kind)
		result[item.ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpsertOwnerItems merges the batch into the owner's collection inside one
// transaction. The upsert is scoped to the owner so a draft can never
// overwrite another owner's item with the same id.
func (s *PostgresStore) UpsertOwnerItems(ctx context.Context, ownerID string, items []models.RemoteRecord) error {
	if len(items) == 0 {
		return nil
	}

	query := `
		INSERT INTO waste_items (id, owner_id, kind, weight_kg, value_cents, description, attachment_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id)
		DO UPDATE SET
			kind = EXCLUDED.kind,
			weight_kg = EXCLUDED.weight_kg,
			value_cents = EXCLUDED.value_cents,
			description = EXCLUDED.description,
			attachment_ref = EXCLUDED.attachment_ref
			WHERE waste_items.owner_id = EXCLUDED.owner_id;
	`

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, item := range items {
			res, err := tx.ExecContext(ctx, query,
				item.ID, ownerID, string(item.Kind), item.WeightKg,
				item.ValueCents, item.Description, item.AttachmentRef, item.CreatedAt)
			if err != nil {
				return fmt.Errorf("db error: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected error: %w", err)
			}
			if n != 1 {
				return fmt.Errorf("unexpected rows affected for item %s: %d", item.ID, n)
			}
		}
		return nil
	})
}
