package postgres

import (
	"database/sql"
	"fmt"

	"github.com/liquid-miners/lm-engine/internal/config"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// PostgresConfig contains the parameters needed to reach the database.
type PostgresConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	DbName     string
	SchemaName string
}

// Postgres wraps the raw SQL connection.
type Postgres struct {
	Db *sql.DB
}

func PostgresConfigFromDbConfig(cfg *config.DatabaseConfig) *PostgresConfig {
	return &PostgresConfig{
		Host:       cfg.Host,
		Port:       cfg.Port,
		Username:   cfg.User,
		Password:   cfg.Password,
		DbName:     cfg.DbName,
		SchemaName: cfg.SchemaName,
	}
}

func (c *PostgresConfig) dsn() string {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=disable", c.Host, c.Port, c.DbName)
	if c.Username != "" {
		dsn = fmt.Sprintf("%s user=%s", dsn, c.Username)
	}
	if c.Password != "" {
		dsn = fmt.Sprintf("%s password=%s", dsn, c.Password)
	}
	if c.SchemaName != "" {
		dsn = fmt.Sprintf("%s search_path=%s", dsn, c.SchemaName)
	}
	return dsn
}

// NewPostgres opens and pings a connection to the configured database.
func NewPostgres(cfg *PostgresConfig) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.dsn())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgres connection")
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping postgres")
	}
	return &Postgres{Db: db}, nil
}

// NewGormFromPostgresConnection layers gorm over an existing connection.
func NewGormFromPostgresConnection(db *sql.DB) (*gorm.DB, error) {
	grm, err := gorm.Open(gormPostgres.New(gormPostgres.Config{
		Conn: db,
	}), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gorm instance")
	}
	return grm, nil
}
