package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"rainfall-dashboard/internal/rainfall"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS rainfall (
	id BIGSERIAL PRIMARY KEY,
	year INTEGER NOT NULL UNIQUE,
	amount DOUBLE PRECISION NOT NULL CHECK (amount >= 0)
);
`

const pgUniqueViolation = "23505"

// PostgresStore is a Postgres-backed implementation of Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Init(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) (User, error) {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (username, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, user.Username, user.PasswordHash, user.Role, user.CreatedAt).Scan(&user.ID)
	if err != nil {
		if isPgUniqueViolation(err) {
			return User{}, ErrDuplicateUser
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) UserByName(ctx context.Context, username string) (User, error) {
	var user User
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, role, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) ListRecords(ctx context.Context) ([]rainfall.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, year, amount
		FROM rainfall
		ORDER BY year ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := make([]rainfall.Record, 0)
	for rows.Next() {
		var (
			id     int64
			record rainfall.Record
		)
		if err := rows.Scan(&id, &record.Year, &record.Amount); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		record.ID = rainfall.RecordID(id)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) CreateRecord(ctx context.Context, input rainfall.Input) (rainfall.Record, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO rainfall (year, amount) VALUES ($1, $2) RETURNING id
	`, input.Year, input.Amount).Scan(&id)
	if err != nil {
		if isPgUniqueViolation(err) {
			return rainfall.Record{}, ErrDuplicateYear
		}
		return rainfall.Record{}, fmt.Errorf("insert record: %w", err)
	}
	return rainfall.Record{ID: rainfall.RecordID(id), Year: input.Year, Amount: input.Amount}, nil
}

func (s *PostgresStore) UpdateRecord(ctx context.Context, id rainfall.RecordID, input rainfall.Input) (rainfall.Record, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE rainfall SET year = $1, amount = $2 WHERE id = $3
	`, input.Year, input.Amount, int64(id))
	if err != nil {
		if isPgUniqueViolation(err) {
			return rainfall.Record{}, ErrDuplicateYear
		}
		return rainfall.Record{}, fmt.Errorf("update record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return rainfall.Record{}, ErrNotFound
	}
	return rainfall.Record{ID: id, Year: input.Year, Amount: input.Amount}, nil
}

func (s *PostgresStore) DeleteRecord(ctx context.Context, id rainfall.RecordID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM rainfall WHERE id = $1`, int64(id))
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Analytics(ctx context.Context) (rainfall.Summary, error) {
	var summary rainfall.Summary
	err := s.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(amount), 0)::double precision,
			COALESCE(AVG(amount), 0)::double precision,
			COALESCE(MAX(amount), 0)::double precision,
			COALESCE(MIN(amount), 0)::double precision
		FROM rainfall
	`).Scan(&summary.Total, &summary.Average, &summary.Highest, &summary.Lowest)
	if err != nil {
		return rainfall.Summary{}, fmt.Errorf("query analytics: %w", err)
	}
	return summary, nil
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
