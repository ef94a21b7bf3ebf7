package repository

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/yourorg/backtest-service/internal/config"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know by name
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Connect opens the database named by cfg.Driver: "pgx" (default), "postgres" (lib/pq) or
// "sqlite" (embedded, file at cfg.Path).
func Connect(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "pgx"
	}

	var dsn string
	switch driver {
	case "pgx", "postgres":
		dsn = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host,
			cfg.Port,
			cfg.User,
			cfg.Password,
			cfg.DBName,
			cfg.SSLMode,
		)
	case "sqlite":
		dsn = cfg.Path
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, err
	}

	if driver == "sqlite" {
		// one writer at a time
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS backtest_executions (
	id           VARCHAR(64) PRIMARY KEY,
	kind         VARCHAR(32) NOT NULL,
	sweep_id     VARCHAR(64) NOT NULL DEFAULT '',
	name         TEXT NOT NULL DEFAULT '',
	strategy     VARCHAR(64) NOT NULL,
	symbols      TEXT NOT NULL,
	status       VARCHAR(16) NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	config       TEXT NOT NULL,
	failures     TEXT NOT NULL DEFAULT '[]',
	created_at   BIGINT NOT NULL,
	started_at   BIGINT,
	completed_at BIGINT
);
CREATE INDEX IF NOT EXISTS idx_backtest_executions_status ON backtest_executions (status);
CREATE INDEX IF NOT EXISTS idx_backtest_executions_created ON backtest_executions (created_at);
CREATE TABLE IF NOT EXISTS backtest_results (
	execution_id VARCHAR(64) PRIMARY KEY REFERENCES backtest_executions (id),
	result       TEXT NOT NULL,
	created_at   BIGINT NOT NULL
);
`

// EnsureSchema creates the execution tables when they are missing
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range splitStatements(schema) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func splitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
