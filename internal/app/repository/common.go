package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	apperrors "voxflow/internal/app/errors"
)

// CommonDB implements Store on database/sql for sqlite3 and postgres.
type CommonDB struct {
	db           *sql.DB
	driverName   string
	placeholders PlaceholderFunc
}

var _ Store = (*CommonDB)(nil)

// PlaceholderFunc generates parameter placeholders for different SQL dialects
type PlaceholderFunc func(n int) string

// NewCommonDB creates a new CommonDB instance
func NewCommonDB(db *sql.DB, driverName string) *CommonDB {
	var placeholders PlaceholderFunc

	switch driverName {
	case "postgres":
		placeholders = func(n int) string { return fmt.Sprintf("$%d", n) }
	default:
		placeholders = func(n int) string { return "?" }
	}

	return &CommonDB{
		db:           db,
		driverName:   driverName,
		placeholders: placeholders,
	}
}

// placeholderList renders n comma separated placeholders starting at start.
func (c *CommonDB) placeholderList(start, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = c.placeholders(start + i)
	}
	return strings.Join(parts, ", ")
}

// assignments renders "col = ?" pairs starting at placeholder start.
func (c *CommonDB) assignments(columns []string, start int) string {
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = fmt.Sprintf("%s = %s", col, c.placeholders(start+i))
	}
	return strings.Join(parts, ", ")
}

// likeOperator is the case-insensitive match operator for the dialect.
func (c *CommonDB) likeOperator() string {
	if c.driverName == "postgres" {
		return "ILIKE"
	}
	// sqlite LIKE is case-insensitive for ASCII.
	return "LIKE"
}

// Close closes the database connection
func (c *CommonDB) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// DB returns the underlying database connection
func (c *CommonDB) DB() *sql.DB {
	return c.db
}

// DriverName returns the database/sql driver in use.
func (c *CommonDB) DriverName() string {
	return c.driverName
}

// Ping verifies the connection.
func (c *CommonDB) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// notFound maps sql.ErrNoRows onto the application not-found error.
func notFound(err error, itemType, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound(itemType, id)
	}
	return apperrors.Wrapf(err, "query %s %s", itemType, id)
}
