package storage

import (
	"context"
	"errors"

	"rainfall-dashboard/internal/rainfall"
)

var (
	// ErrNotFound is returned when the addressed record or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateYear is returned when another record already holds the year.
	ErrDuplicateYear = errors.New("year already exists")
	// ErrDuplicateUser is returned when the username is taken.
	ErrDuplicateUser = errors.New("username already exists")
)

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// Store defines the persistence contract for accounts and rainfall records.
//
// Handlers express request semantics; SQL details stay behind this interface so
// the SQLite and Postgres backends answer identically.
type Store interface {
	// Init prepares schema/connection state needed before serving requests.
	Init(ctx context.Context) error

	// Close releases resources held by the storage backend.
	Close() error

	// CreateUser inserts an account. The password must already be hashed.
	CreateUser(ctx context.Context, user User) (User, error)

	// UserByName looks up an account by its unique username.
	UserByName(ctx context.Context, username string) (User, error)

	// ListRecords returns every record ordered by year.
	ListRecords(ctx context.Context) ([]rainfall.Record, error)

	// CreateRecord inserts a record. Years are unique across the collection.
	CreateRecord(ctx context.Context, input rainfall.Input) (rainfall.Record, error)

	// UpdateRecord overwrites year and amount of an existing record.
	UpdateRecord(ctx context.Context, id rainfall.RecordID, input rainfall.Input) (rainfall.Record, error)

	// DeleteRecord removes a record.
	DeleteRecord(ctx context.Context, id rainfall.RecordID) error

	// Analytics aggregates the amounts. All fields are zero when empty.
	Analytics(ctx context.Context) (rainfall.Summary, error)
}
