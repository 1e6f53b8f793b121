package storage

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a lookup or an update targets a missing row.
var ErrNotFound = errors.New("record not found")

type Database struct {
	db *gorm.DB

	Accounts     *Proxy[Account]
	Categories   *Proxy[Category]
	Transactions *TransactionProxy
}

// newLogger reports slow queries and failures, but not lookups that find
// nothing: those are expected on every import.
func newLogger(w logger.Writer) logger.Interface {
	return logger.New(w, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

func NewDatabase(dbPath string) (*Database, error) {
	return openDatabase(dbPath, newLogger(log.New(os.Stderr, "\r\n", log.LstdFlags)))
}

func openDatabase(dbPath string, l logger.Interface) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{Logger: l})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	// sqlite allows a single writer; concurrent fan-out writes queue here.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Account{}, &Category{}, &Transaction{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Database{
		db:           db,
		Accounts:     NewProxy[Account](db),
		Categories:   NewProxy[Category](db),
		Transactions: NewTransactionProxy(db),
	}, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to access connection pool: %w", err)
	}
	return sqlDB.Close()
}
