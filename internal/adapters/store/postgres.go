package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Postgres struct {
	db     *sqlx.DB
	schema string
	tracer trace.Tracer
}

// NewPostgres expects the schema to be migrated with database.NewDatabaseMigrator
func NewPostgres(db *sqlx.DB, schema string) *Postgres {
	return &Postgres{
		db:     db,
		schema: schema,
		tracer: otel.Tracer("deckcache/store/postgres"),
	}
}

type dbRecord struct {
	Key       string       `db:"key"`
	Value     []byte       `db:"value"`
	ExpiresAt sql.NullTime `db:"expires_at"`
}

func (r dbRecord) toRecord() Record {
	record := Record{
		Key:   r.Key,
		Value: r.Value,
	}
	if r.ExpiresAt.Valid {
		record.ExpiresAt = r.ExpiresAt.Time
	}
	return record
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func (p *Postgres) table() string {
	return fmt.Sprintf("%s.cache_records", pq.QuoteIdentifier(p.schema))
}

func (p *Postgres) start(ctx context.Context, name string, partition string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("partition", partition)))
}

func (p *Postgres) Get(ctx context.Context, partition string, key string) (Record, error) {
	ctx, span := p.start(ctx, "Postgres.Get", partition)
	defer span.End()

	if err := checkPartition(partition); err != nil {
		return Record{}, err
	}

	var record dbRecord
	err := p.db.QueryRowxContext(
		ctx,
		fmt.Sprintf("SELECT key, value, expires_at FROM %s WHERE partition = $1 AND key = $2", p.table()),
		partition,
		key,
	).StructScan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return Record{}, fmt.Errorf("failed to get record: %w", err)
	}

	return record.toRecord(), nil
}

func (p *Postgres) Put(ctx context.Context, partition string, record Record) error {
	ctx, span := p.start(ctx, "Postgres.Put", partition)
	defer span.End()

	if err := checkPartition(partition); err != nil {
		return err
	}

	_, err := p.db.ExecContext(
		ctx,
		fmt.Sprintf(`INSERT INTO %s
		(partition, key, value, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (partition, key)
		DO UPDATE SET
			value = EXCLUDED.value,
			expires_at = EXCLUDED.expires_at`,
			p.table()),
		partition,
		record.Key,
		[]byte(record.Value),
		nullTime(record.ExpiresAt),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to put record: %w", err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, partition string, key string) error {
	ctx, span := p.start(ctx, "Postgres.Delete", partition)
	defer span.End()

	if err := checkPartition(partition); err != nil {
		return err
	}

	_, err := p.db.ExecContext(
		ctx,
		fmt.Sprintf("DELETE FROM %s WHERE partition = $1 AND key = $2", p.table()),
		partition,
		key,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

func (p *Postgres) List(ctx context.Context, partition string) ([]Record, error) {
	ctx, span := p.start(ctx, "Postgres.List", partition)
	defer span.End()

	if err := checkPartition(partition); err != nil {
		return nil, err
	}

	var dbRecords []dbRecord
	err := p.db.SelectContext(
		ctx,
		&dbRecords,
		fmt.Sprintf("SELECT key, value, expires_at FROM %s WHERE partition = $1 ORDER BY key ASC", p.table()),
		partition,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	records := make([]Record, 0, len(dbRecords))
	for _, record := range dbRecords {
		records = append(records, record.toRecord())
	}
	return records, nil
}

func (p *Postgres) Clear(ctx context.Context, partition string) error {
	ctx, span := p.start(ctx, "Postgres.Clear", partition)
	defer span.End()

	if err := checkPartition(partition); err != nil {
		return err
	}

	_, err := p.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE partition = $1", p.table()), partition)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to clear partition: %w", err)
	}
	return nil
}

func (p *Postgres) DeleteExpired(ctx context.Context, partition string, now time.Time) (int, error) {
	ctx, span := p.start(ctx, "Postgres.DeleteExpired", partition)
	defer span.End()

	if err := checkPartition(partition); err != nil {
		return 0, err
	}

	result, err := p.db.ExecContext(
		ctx,
		fmt.Sprintf("DELETE FROM %s WHERE partition = $1 AND expires_at IS NOT NULL AND expires_at <= $2", p.table()),
		partition,
		now,
	)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to delete expired records: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted records: %w", err)
	}
	span.SetAttributes(attribute.Int64("deleted", deleted))

	return int(deleted), nil
}

var _ Store = (*Postgres)(nil)
