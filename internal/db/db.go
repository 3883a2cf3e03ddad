package db

import (
	"fmt"
	"time"

	"servicemarket/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// Open connects to PostgreSQL and migrates the schema.
func Open(dsn string, log logrus.FieldLogger) (*gorm.DB, error) {
	if dsn == "" {
		// Fallback for local dev if not set
		dsn = "host=localhost user=postgres password=postgres dbname=servicemarket port=5432 sslmode=disable"
	}

	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         newGormLogger(log),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	log.Info("Database connection established")

	if err := Migrate(conn); err != nil {
		return nil, err
	}
	log.Info("Database migration completed")
	return conn, nil
}

// MemoryDSN opens a private in-memory SQLite database.
const MemoryDSN = ":memory:"

// OpenSQLite opens (or creates) a SQLite database file with the pure-Go driver and
// migrates the schema. Used for single-node deployments and tests.
func OpenSQLite(path string, log logrus.FieldLogger) (*gorm.DB, error) {
	if path == "" {
		path = "servicemarket.db"
	}
	conn, err := gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
	}, &gorm.Config{Logger: newGormLogger(log)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite 只允许单写者
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// Migrate creates or updates every table the store uses.
func Migrate(conn *gorm.DB) error {
	err := conn.AutoMigrate(
		&models.UserInfo{},
		&models.Service{},
		&models.Comment{},
		&models.Vote{},
		&models.Payment{},
		&models.Permission{},
	)
	if err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}

// newGormLogger routes gorm's slow-query and error output through logrus.
func newGormLogger(log logrus.FieldLogger) logger.Interface {
	return logger.New(
		gormWriter{log: log.WithField("component", "gorm")},
		logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
}

type gormWriter struct {
	log logrus.FieldLogger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warnf(format, args...)
}

// NewStore builds the Store selected by driver: "postgres" (dsn), "sqlite" (dsn is a
// file path) or "memory".
func NewStore(driver, dsn string, log logrus.FieldLogger) (Store, error) {
	switch driver {
	case "memory":
		// 单连接常驻，内存库随进程存在
		log.Warn("Using in-memory SQLite store; data is lost on restart")
		conn, err := OpenSQLite(MemoryDSN, log)
		if err != nil {
			return nil, err
		}
		return NewGormStore(conn), nil
	case "sqlite":
		conn, err := OpenSQLite(dsn, log)
		if err != nil {
			return nil, err
		}
		return NewGormStore(conn), nil
	case "postgres", "":
		conn, err := Open(dsn, log)
		if err != nil {
			return nil, err
		}
		return NewGormStore(conn), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", driver)
}
