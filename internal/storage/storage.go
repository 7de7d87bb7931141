package storage

import (
	"context"
	"errors"

	"github.com/pribylovaa/user-intake/internal/models"
)

var (
	// ErrConflict — запись с таким id уже существует.
	ErrConflict = errors.New("conflict")
)

// UserStorage — документное хранилище записей пользователей.
// Реализации безопасны для конкурентного использования.
type UserStorage interface {
	// SaveUser выполняет ровно одну вставку записи.
	// Возможные ошибки: ErrConflict; прочие — ошибки драйвера/контекста.
	SaveUser(ctx context.Context, rec models.UserRecord) error

	// Ping проверяет доступность хранилища (readiness).
	Ping(ctx context.Context) error

	// Close закрывает соединения/ресурсы хранилища.
	Close(ctx context.Context) error
}
