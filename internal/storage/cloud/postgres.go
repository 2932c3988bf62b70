package cloud

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"

	"github.com/jaywantadh/fragments/internal/storage"
)

const fragmentsTable = "fragments"

var metadataColumns = []string{"owner_id", "id", "type", "size", "created", "updated"}

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

type metadataStore struct {
	pool *pgxpool.Pool
	log  logrus.FieldLogger
}

func openMetadataStore(ctx context.Context, dsn string, log logrus.FieldLogger) (*metadataStore, error) {
	if err := runMigrations(dsn, log); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	log.Debug("pgxpool initialized")
	return &metadataStore{pool: pool, log: log}, nil
}

func runMigrations(dsn string, log logrus.FieldLogger) error {
	// golang-migrate needs a database/sql handle separate from the pool.
	sqldb, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("sql.Open pgx: %w", err)
	}
	defer sqldb.Close()

	driver, err := postgres.WithInstance(sqldb, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("postgres driver: %w", err)
	}
	src, err := iofs.New(embeddedMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate.New: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Debug("no new migrations to apply")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}
	log.Info("migrations applied")
	return nil
}

func qb() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

func upsertQuery(meta storage.Metadata) sq.InsertBuilder {
	return qb().Insert(fragmentsTable).
		Columns(metadataColumns...).
		Values(meta.OwnerID, meta.ID, meta.Type, meta.Size, meta.Created, meta.Updated).
		Suffix("ON CONFLICT (owner_id, id) DO UPDATE SET " +
			"type = EXCLUDED.type, size = EXCLUDED.size, " +
			"created = EXCLUDED.created, updated = EXCLUDED.updated")
}

func selectQuery(ownerID string) sq.SelectBuilder {
	return qb().Select(metadataColumns...).
		From(fragmentsTable).
		Where(sq.Eq{"owner_id": ownerID})
}

func getQuery(ownerID, id string) sq.SelectBuilder {
	return selectQuery(ownerID).Where(sq.Eq{"id": id})
}

func listQuery(ownerID string) sq.SelectBuilder {
	return selectQuery(ownerID).OrderBy("created", "id")
}

func deleteQuery(ownerID, id string) sq.DeleteBuilder {
	return qb().Delete(fragmentsTable).
		Where(sq.And{sq.Eq{"owner_id": ownerID}, sq.Eq{"id": id}})
}

func (s *metadataStore) logSQL(op, query string, args []any, started time.Time) {
	s.log.WithFields(logrus.Fields{
		"op":       op,
		"sql":      query,
		"args":     len(args),
		"duration": time.Since(started),
	}).Trace("postgres query")
}

func (s *metadataStore) upsert(ctx context.Context, meta storage.Metadata) error {
	query, args, err := upsertQuery(meta).ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	start := time.Now()
	_, err = s.pool.Exec(ctx, query, args...)
	s.logSQL("upsert", query, args, start)
	if err != nil {
		return unavailable(ctx, "write metadata", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMetadata(row scanner) (storage.Metadata, error) {
	var m storage.Metadata
	err := row.Scan(&m.OwnerID, &m.ID, &m.Type, &m.Size, &m.Created, &m.Updated)
	m.Created = m.Created.UTC()
	m.Updated = m.Updated.UTC()
	return m, err
}

func (s *metadataStore) get(ctx context.Context, ownerID, id string) (storage.Metadata, error) {
	query, args, err := getQuery(ownerID, id).ToSql()
	if err != nil {
		return storage.Metadata{}, fmt.Errorf("build select: %w", err)
	}
	start := time.Now()
	meta, err := scanMetadata(s.pool.QueryRow(ctx, query, args...))
	s.logSQL("get", query, args, start)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Metadata{}, storage.NotFound("metadata", ownerID, id)
	}
	if err != nil {
		return storage.Metadata{}, unavailable(ctx, "read metadata", err)
	}
	return meta, nil
}

func (s *metadataStore) list(ctx context.Context, ownerID string) ([]storage.Metadata, error) {
	query, args, err := listQuery(ownerID).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}
	start := time.Now()
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, unavailable(ctx, "list", err)
	}
	defer rows.Close()

	out := []storage.Metadata{}
	for rows.Next() {
		meta, err := scanMetadata(rows)
		if err != nil {
			return nil, unavailable(ctx, "list", err)
		}
		out = append(out, meta)
	}
	s.logSQL("list", query, args, start)
	if err := rows.Err(); err != nil {
		return nil, unavailable(ctx, "list", err)
	}
	return out, nil
}

func (s *metadataStore) listIDs(ctx context.Context, ownerID string) ([]string, error) {
	metas, err := s.list(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(metas))
	for i, m := range metas {
		ids[i] = m.ID
	}
	return ids, nil
}

func (s *metadataStore) remove(ctx context.Context, ownerID, id string) error {
	query, args, err := deleteQuery(ownerID, id).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	start := time.Now()
	_, err = s.pool.Exec(ctx, query, args...)
	s.logSQL("delete", query, args, start)
	if err != nil {
		return unavailable(ctx, "delete metadata", err)
	}
	return nil
}

func (s *metadataStore) close() {
	s.pool.Close()
}
