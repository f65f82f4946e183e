// Package journal keeps a history of reconcile runs in SQLite or MySQL.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fsrewire/pkg/model"
	"fsrewire/pkg/simconnect"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"

	DefaultFile  = "fsrewire.db"
	DefaultLimit = 20
	MaxLimit     = 500
)

var ErrDriver = errors.New("journal: unsupported driver")

// Journal stores ReconcileEntry rows.
type Journal struct {
	db *gorm.DB
}

// Open connects and migrates. An empty driver means sqlite; an empty sqlite dsn
// puts DefaultFile next to the executable.
func Open(driver, dsn string) (*Journal, error) {
	cfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(driver) {
	case "", DriverSQLite:
		if dsn == "" {
			dsn = DefaultSQLitePath()
		}
		db, err = gorm.Open(sqlite.Open(dsn), cfg)
		if err == nil {
			sqlDB, _ := db.DB()
			sqlDB.SetMaxOpenConns(1)
		}
	case DriverMySQL:
		db, err = openMySQL(dsn, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrDriver, driver)
	}
	if err != nil {
		return nil, fmt.Errorf("journal open %s: %w", driver, err)
	}
	if err := db.AutoMigrate(&model.ReconcileEntry{}); err != nil {
		return nil, fmt.Errorf("journal migrate: %w", err)
	}
	return &Journal{db: db}, nil
}

// DefaultSQLitePath is DefaultFile in the executable's directory.
func DefaultSQLitePath() string {
	exePath, err := os.Executable()
	if err != nil {
		return DefaultFile
	}
	return filepath.Join(filepath.Dir(exePath), DefaultFile)
}

func openMySQL(dsn string, cfg *gorm.Config) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("mysql dsn is empty")
	}
	db, err := gorm.Open(mysql.Open(dsn), cfg)
	if err != nil {
		if !strings.Contains(err.Error(), "Unknown database") {
			return nil, err
		}
		if cerr := createDatabase(dsn); cerr != nil {
			return nil, fmt.Errorf("create database failed: %w", cerr)
		}
		if db, err = gorm.Open(mysql.Open(dsn), cfg); err != nil {
			return nil, err
		}
	}
	sqlDB, _ := db.DB()
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(5)
	return db, nil
}

func createDatabase(dsn string) error {
	c, err := mysqldrv.ParseDSN(dsn)
	if err != nil {
		return err
	}
	name := c.DBName
	c.DBName = ""
	db, err := sql.Open("mysql", c.FormatDSN())
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.Exec(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` DEFAULT CHARACTER SET utf8mb4", name))
	return err
}

// Entry builds the journal row for one reconcile attempt.
func Entry(trigger string, res simconnect.Result, err error) model.ReconcileEntry {
	e := model.ReconcileEntry{
		Path:    res.Path,
		Trigger: trigger,
		Changed: res.Changed,
		Created: res.Created,
	}
	if err != nil {
		e.Error = err.Error()
		return e
	}
	e.Address = res.Endpoint.Address
	e.Port = res.Endpoint.Port
	return e
}

// Record stores e, assigning ID and CreatedAt when unset.
func (j *Journal) Record(ctx context.Context, e model.ReconcileEntry) (model.ReconcileEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if err := j.db.WithContext(ctx).Create(&e).Error; err != nil {
		return e, fmt.Errorf("journal record: %w", err)
	}
	return e, nil
}

// Recent returns up to limit entries, newest first. limit is clamped to
// [1, MaxLimit]; zero or less means DefaultLimit.
func (j *Journal) Recent(ctx context.Context, limit int) ([]model.ReconcileEntry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	var out []model.ReconcileEntry
	err := j.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("journal recent: %w", err)
	}
	return out, nil
}

// Close releases the connection pool.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
