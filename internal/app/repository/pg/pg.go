package pg

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"voxflow/internal/app/repository"
)

// Open connects to postgres with a libpq style connection string.
func Open(dsn string) (*repository.CommonDB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return repository.NewCommonDB(db, "postgres"), nil
}
