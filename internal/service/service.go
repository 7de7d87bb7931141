// service содержит бизнес-логику регистрации пользователей.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pribylovaa/user-intake/internal/metrics"
	"github.com/pribylovaa/user-intake/internal/models"
	"github.com/pribylovaa/user-intake/internal/storage"
)

var (
	// ErrUnauthenticated — нет учётных данных или токен не прошёл проверку.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrMalformedInput — тело запроса не разбирается как JSON-объект.
	ErrMalformedInput = errors.New("malformed input")
	// ErrInvalidInput — userName или userEmail отсутствуют либо пусты.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInProgress — такой же запрос ещё выполняется.
	ErrInProgress = errors.New("in progress")
	// ErrDependencyFailure — хранилище или провайдер удостоверений недоступны.
	ErrDependencyFailure = errors.New("dependency failure")
)

// IdempotencyGuard — контракт хранилища ключей идемпотентности.
type IdempotencyGuard interface {
	Claim(ctx context.Context, key string) (*models.UserRecord, bool, error)
	Complete(ctx context.Context, key string, rec models.UserRecord) error
	Release(ctx context.Context, key string) error
}

// Options — необязательные зависимости и параметры.
type Options struct {
	StoreTimeout time.Duration
	Idempotency  IdempotencyGuard // nil — идемпотентность выключена
	Metrics      metrics.Recorder
	Now          func() time.Time
	NewID        func() string
}

// Users — регистрация пользователей. Общего изменяемого состояния нет.
type Users struct {
	store        storage.UserStorage
	idem         IdempotencyGuard
	storeTimeout time.Duration
	metrics      metrics.Recorder
	now          func() time.Time
	newID        func() string
	validate     *validator.Validate
}

// New создает новый экземпляр Users.
func New(store storage.UserStorage, opts Options) *Users {
	u := &Users{
		store:        store,
		idem:         opts.Idempotency,
		storeTimeout: opts.StoreTimeout,
		metrics:      opts.Metrics,
		now:          opts.Now,
		newID:        opts.NewID,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}

	if u.metrics == nil {
		u.metrics = metrics.Noop{}
	}

	if u.now == nil {
		u.now = time.Now
	}

	if u.newID == nil {
		u.newID = uuid.NewString
	}

	return u
}
