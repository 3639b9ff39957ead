package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v4/pgxpool"

	"participation-tracker/internal/domain"
)

const recordsTable = "tracker_records"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store keeps every tracker table in one JSONB-backed relation keyed by
// (tbl, id). Secondary indexes live in the indexes column.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool for url.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

func (s *Store) Put(ctx context.Context, rec domain.Record) error {
	query, args, err := putQuery(rec)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("put %s/%s: %w", rec.Table, rec.ID, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table, id string) error {
	query, args, err := psql.Delete(recordsTable).
		Where(sq.Eq{"tbl": table, "id": id}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("delete %s/%s: %w", table, id, err)
	}
	return nil
}

func (s *Store) DeleteByIndex(ctx context.Context, table, field, value string) error {
	query, args, err := psql.Delete(recordsTable).
		Where(sq.Eq{"tbl": table}).
		Where("indexes->>? = ?", field, value).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("delete %s.%s=%s: %w", table, field, value, err)
	}
	return nil
}

func (s *Store) QueryByIndex(ctx context.Context, table, field, value string) ([]domain.Record, error) {
	return s.query(ctx, table, selectQuery(table).Where("indexes->>? = ?", field, value))
}

func (s *Store) All(ctx context.Context, table string) ([]domain.Record, error) {
	return s.query(ctx, table, selectQuery(table))
}

func (s *Store) query(ctx context.Context, table string, b sq.SelectBuilder) ([]domain.Record, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		var (
			id      string
			indexes []byte
			data    []byte
		)
		if err := rows.Scan(&id, &indexes, &data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		rec := domain.Record{Table: table, ID: id, Data: json.RawMessage(data)}
		if err := json.Unmarshal(indexes, &rec.Indexes); err != nil {
			return nil, fmt.Errorf("decode indexes %s/%s: %w", table, id, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func selectQuery(table string) sq.SelectBuilder {
	return psql.Select("id", "indexes", "data").
		From(recordsTable).
		Where(sq.Eq{"tbl": table}).
		OrderBy("id")
}

func putQuery(rec domain.Record) (string, []interface{}, error) {
	indexes := rec.Indexes
	if indexes == nil {
		indexes = map[string]string{}
	}
	idx, err := json.Marshal(indexes)
	if err != nil {
		return "", nil, fmt.Errorf("encode indexes %s/%s: %w", rec.Table, rec.ID, err)
	}
	return psql.Insert(recordsTable).
		Columns("tbl", "id", "indexes", "data").
		Values(rec.Table, rec.ID, string(idx), string(rec.Data)).
		Suffix("ON CONFLICT (tbl, id) DO UPDATE SET indexes = EXCLUDED.indexes, data = EXCLUDED.data, updated_at = now()").
		ToSql()
}
