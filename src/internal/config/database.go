package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/VectorBits/pocshift/src/internal/corpus"
	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MySQLDSN builds the DSN for the mysql driver.
func (d DatabaseConfig) MySQLDSN() string {
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = d.Host + ":" + defaultString(d.Port, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

func (d DatabaseConfig) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		defaultString(d.Host, "localhost"),
		defaultString(d.Port, "5432"),
		d.User,
		d.Password,
		d.Name,
		defaultString(d.SSLMode, "disable"),
	)
}

func (d DatabaseConfig) dialector() (gorm.Dialector, error) {
	switch d.Driver {
	case "", "sqlite":
		if d.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(d.Path), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		return sqlite.Open(d.Path), nil
	case "postgres":
		return postgres.Open(d.PostgresDSN()), nil
	case "mysql":
		return gormmysql.Open(d.MySQLDSN()), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", d.Driver)
	}
}

// OpenDatabase connects to the configured database with gorm's own logger
// silenced.
func OpenDatabase(d DatabaseConfig) (*gorm.DB, error) {
	dialector, err := d.dialector()
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", d.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if d.Driver == "" || d.Driver == "sqlite" {
		// sqlite 只允许单写
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}
	return db, nil
}

// OpenRepository opens the database and migrates the corpus tables.
func OpenRepository(d DatabaseConfig) (*corpus.GormRepository, error) {
	db, err := OpenDatabase(d)
	if err != nil {
		return nil, err
	}
	return corpus.NewGormRepository(db)
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
