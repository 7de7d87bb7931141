// postgres — адаптер UserStorage поверх PostgreSQL: запись хранится документом (jsonb)
// рядом с колонками для индексации. Таблица — db.collection, база — db.database.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pribylovaa/user-intake/internal/config"
	"github.com/pribylovaa/user-intake/internal/storage"
)

type Storage struct {
	db    *pgxpool.Pool
	table string // уже экранированное имя
}

// New создаёт пул, проверяет соединение и гарантирует наличие таблицы.
func New(ctx context.Context, cfg config.DBConfig) (*Storage, error) {
	const op = "storage/postgres/New"

	poolCfg, err := pgxpool.ParseConfig(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cfg.Username != "" {
		poolCfg.ConnConfig.User = cfg.Username
	}

	if cfg.AccessKey != "" {
		poolCfg.ConnConfig.Password = cfg.AccessKey
	}

	if cfg.Database != "" {
		poolCfg.ConnConfig.Database = cfg.Database
	}

	db, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s := &Storage{
		db:    db,
		table: pgx.Identifier{cfg.Collection}.Sanitize(),
	}

	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s, nil
}

func (s *Storage) ensureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
CREATE TABLE IF NOT EXISTS `+s.table+` (
	id         uuid        PRIMARY KEY,
	user_name  text        NOT NULL CHECK (user_name <> ''),
	user_email text        NOT NULL CHECK (user_email <> ''),
	created_at timestamptz NOT NULL,
	doc        jsonb       NOT NULL
)`)

	return err
}

// Ping проверяет доступность пула.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close закрывает пул соединений.
func (s *Storage) Close(context.Context) error {
	s.db.Close()
	return nil
}

// Проверка на соответствие интерфейсу.
var _ storage.UserStorage = (*Storage)(nil)
