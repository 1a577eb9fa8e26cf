package repository

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // Драйвер PostgreSQL, импортируем для регистрации
)

const (
	maxOpenConns    = 25              // Максимальное количество открытых соединений
	maxIdleConns    = 25              // Максимальное количество простаивающих соединений
	connMaxLifetime = 5 * time.Minute // Максимальное время жизни соединения
	connMaxIdleTime = 5 * time.Minute // Максимальное время простоя соединения
)

// BuildDSN собирает строку подключения из адреса сервера и имени логической БД.
// Имя БД подставляется в путь, параметры адреса (sslmode и т.п.) сохраняются.
func BuildDSN(uri, dbName string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("неверный адрес БД: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("неподдерживаемая схема адреса БД: %q", u.Scheme)
	}
	if dbName != "" {
		u.Path = "/" + strings.TrimPrefix(dbName, "/")
	}
	q := u.Query()
	if q.Get("sslmode") == "" {
		// sslmode=disable удобно для локальной разработки с Docker
		q.Set("sslmode", "disable")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// NewPostgresDB создает и возвращает новое подключение к PostgreSQL.
// Вызывающий владеет пулом соединений и обязан закрыть его при завершении.
func NewPostgresDB(dsn string) (*sqlx.DB, error) {
	log.Printf("Подключение к PostgreSQL...")

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	// Проверка соединения
	if err = db.Ping(); err != nil {
		closeErr := db.Close()
		if closeErr != nil {
			log.Printf("Ошибка закрытия соединения с БД после неудачного пинга: %v", closeErr)
		}
		return nil, fmt.Errorf("ошибка проверки соединения с БД (ping): %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	log.Println("Подключение к PostgreSQL успешно установлено.")
	return db, nil
}

// schemaStatements создают таблицы и индексы, если их еще нет.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS vaults (
		id UUID NOT NULL UNIQUE,
		owner_wallet TEXT PRIMARY KEY,
		nominee_wallet TEXT NOT NULL,
		trustees TEXT[] NOT NULL,
		status TEXT NOT NULL,
		heartbeat_interval_days INTEGER NOT NULL CHECK (heartbeat_interval_days > 0),
		cooldown_period_days INTEGER NOT NULL CHECK (cooldown_period_days > 0),
		asset_type TEXT NOT NULL,
		amount NUMERIC NOT NULL CHECK (amount >= 0),
		last_heartbeat_at TIMESTAMPTZ NOT NULL,
		cooldown_started_at TIMESTAMPTZ,
		transferred_at TIMESTAMPTZ,
		votes JSONB NOT NULL DEFAULT '[]'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		version BIGINT NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS vaults_nominee_wallet_idx ON vaults (nominee_wallet)`,
	`CREATE INDEX IF NOT EXISTS vaults_trustees_idx ON vaults USING GIN (trustees)`,
	`CREATE INDEX IF NOT EXISTS vaults_status_idx ON vaults (status)`,
	`CREATE INDEX IF NOT EXISTS vaults_last_heartbeat_at_idx ON vaults (last_heartbeat_at)`,
	`CREATE TABLE IF NOT EXISTS vault_events (
		id BIGSERIAL PRIMARY KEY,
		vault_id UUID NOT NULL,
		owner_wallet TEXT NOT NULL REFERENCES vaults (owner_wallet),
		kind TEXT NOT NULL,
		actor_wallet TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS vault_events_owner_created_idx ON vault_events (owner_wallet, created_at DESC)`,
}

// EnsureSchema создает схему БД. Операция идемпотентна.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			log.Printf("[Schema] Ошибка применения схемы: %v", err)
			return fmt.Errorf("ошибка применения схемы БД: %w", wrapConnErr(err))
		}
	}
	log.Printf("[Schema] Схема БД применена (%d выражений)", len(schemaStatements))
	return nil
}
