package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"rainfall-dashboard/internal/rainfall"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS rainfall (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	year INTEGER NOT NULL,
	amount REAL NOT NULL CHECK (amount >= 0)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_rainfall_year ON rainfall(year);
`

// SQLiteStore is a SQLite-backed implementation of Store.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("enable wal: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateUser(ctx context.Context, user User) (User, error) {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role, created_at)
		VALUES (?, ?, ?, ?)
	`, user.Username, user.PasswordHash, user.Role, user.CreatedAt.UnixMilli())
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrDuplicateUser
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	user.ID, err = result.LastInsertId()
	if err != nil {
		return User{}, fmt.Errorf("user id: %w", err)
	}
	return user, nil
}

func (s *SQLiteStore) UserByName(ctx context.Context, username string) (User, error) {
	var (
		user    User
		created int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, created_at
		FROM users
		WHERE username = ?
	`, username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("query user: %w", err)
	}
	user.CreatedAt = time.UnixMilli(created).UTC()
	return user, nil
}

func (s *SQLiteStore) ListRecords(ctx context.Context) ([]rainfall.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
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
		var record rainfall.Record
		if err := rows.Scan(&record.ID, &record.Year, &record.Amount); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

func (s *SQLiteStore) CreateRecord(ctx context.Context, input rainfall.Input) (rainfall.Record, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO rainfall (year, amount) VALUES (?, ?)
	`, input.Year, input.Amount)
	if err != nil {
		if isUniqueViolation(err) {
			return rainfall.Record{}, ErrDuplicateYear
		}
		return rainfall.Record{}, fmt.Errorf("insert record: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return rainfall.Record{}, fmt.Errorf("record id: %w", err)
	}
	return rainfall.Record{ID: rainfall.RecordID(id), Year: input.Year, Amount: input.Amount}, nil
}

func (s *SQLiteStore) UpdateRecord(ctx context.Context, id rainfall.RecordID, input rainfall.Input) (rainfall.Record, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE rainfall SET year = ?, amount = ? WHERE id = ?
	`, input.Year, input.Amount, int64(id))
	if err != nil {
		if isUniqueViolation(err) {
			return rainfall.Record{}, ErrDuplicateYear
		}
		return rainfall.Record{}, fmt.Errorf("update record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return rainfall.Record{}, fmt.Errorf("update record: %w", err)
	}
	if affected == 0 {
		return rainfall.Record{}, ErrNotFound
	}
	return rainfall.Record{ID: id, Year: input.Year, Amount: input.Amount}, nil
}

func (s *SQLiteStore) DeleteRecord(ctx context.Context, id rainfall.RecordID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM rainfall WHERE id = ?`, int64(id))
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Analytics(ctx context.Context) (rainfall.Summary, error) {
	var summary rainfall.Summary
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(amount), 0.0),
			COALESCE(AVG(amount), 0.0),
			COALESCE(MAX(amount), 0.0),
			COALESCE(MIN(amount), 0.0)
		FROM rainfall
	`).Scan(&summary.Total, &summary.Average, &summary.Highest, &summary.Lowest)
	if err != nil {
		return rainfall.Summary{}, fmt.Errorf("query analytics: %w", err)
	}
	return summary, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
