package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"promptrelay/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the configured database.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(cfg.Driver) {
	case "sqlite", "sqlite3", "":
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite path must be provided")
		}
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		db, err = sql.Open("sqlite3", cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// a single connection serialises writers and keeps :memory: databases shared
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
			cfg.Username,
			cfg.Password,
			cfg.Host,
			cfg.Port,
			cfg.DBName,
			cfg.Params,
		)
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the conversations and responses tables are present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3", "":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS conversations (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				prompt TEXT NOT NULL,
				timestamp DATETIME NOT NULL,
				user_session TEXT,
				model_used TEXT,
				response_success BOOLEAN NOT NULL DEFAULT 1
			)`,
			`CREATE TABLE IF NOT EXISTS responses (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				conversation_id INTEGER NOT NULL,
				provider TEXT NOT NULL,
				model TEXT,
				response_text TEXT,
				success BOOLEAN NOT NULL DEFAULT 1,
				error_message TEXT,
				response_time REAL,
				tokens_used INTEGER,
				FOREIGN KEY(conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_conversations_timestamp ON conversations(timestamp DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_responses_conversation ON responses(conversation_id)`,
			`CREATE INDEX IF NOT EXISTS idx_responses_provider ON responses(provider)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS conversations (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				prompt MEDIUMTEXT NOT NULL,
				timestamp DATETIME(6) NOT NULL,
				user_session VARCHAR(255),
				model_used VARCHAR(255),
				response_success BOOLEAN NOT NULL DEFAULT TRUE,
				PRIMARY KEY (id),
				INDEX idx_conversations_timestamp (timestamp)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS responses (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				conversation_id BIGINT UNSIGNED NOT NULL,
				provider VARCHAR(100) NOT NULL,
				model VARCHAR(255),
				response_text MEDIUMTEXT,
				success BOOLEAN NOT NULL DEFAULT TRUE,
				error_message TEXT,
				response_time DOUBLE,
				tokens_used BIGINT,
				PRIMARY KEY (id),
				INDEX idx_responses_conversation (conversation_id),
				INDEX idx_responses_provider (provider),
				CONSTRAINT fk_responses_conversation FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}
