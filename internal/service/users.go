package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pribylovaa/user-intake/internal/idempotency"
	"github.com/pribylovaa/user-intake/internal/metrics"
	"github.com/pribylovaa/user-intake/internal/models"
	"github.com/pribylovaa/user-intake/pkg/log"
	"github.com/pribylovaa/user-intake/pkg/redact"
)

// RegisterInput — тело запроса регистрации.
type RegisterInput struct {
	UserName  string `json:"userName" validate:"required"`
	UserEmail string `json:"userEmail" validate:"required"`
}

// releaseTimeout ограничивает снятие захвата после неудачной записи.
const releaseTimeout = 2 * time.Second

// Register — бизнес-операция регистрации пользователя.
//
// Валидация:
//   - principal обязателен (nil -> ErrUnauthenticated);
//   - UserName и UserEmail нормализуются (TrimSpace) и не должны быть пустыми (-> ErrInvalidInput).
//
// Поведение/ошибки:
//   - ровно одна запись в хранилище; повторов нет;
//   - ErrInProgress — при включённой идемпотентности такой же запрос ещё выполняется;
//   - ErrDependencyFailure — ошибка или таймаут хранилища/Redis (таймаут сохраняет context.DeadlineExceeded в цепочке).
func (u *Users) Register(ctx context.Context, p *models.Principal, in RegisterInput) (*models.UserRecord, error) {
	const op = "service/users/Register"

	lg := log.From(ctx).With("op", op)

	if p == nil {
		lg.Warn("unauthenticated: no principal")
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}

	in.UserName = strings.TrimSpace(in.UserName)
	in.UserEmail = strings.TrimSpace(in.UserEmail)

	if err := u.validate.Struct(in); err != nil {
		lg.Warn("invalid input", "err", err.Error())
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidInput)
	}

	rec := models.UserRecord{
		ID:        u.newID(),
		UserName:  in.UserName,
		UserEmail: in.UserEmail,
		Timestamp: u.now().UTC(),
	}

	var idemKey string
	if u.idem != nil {
		idemKey = idempotency.Key(p.Subject, rec.UserName, rec.UserEmail)

		prev, claimed, err := u.claim(ctx, idemKey)
		if err != nil {
			if errors.Is(err, idempotency.ErrInProgress) {
				lg.Warn("request in progress")
				return nil, fmt.Errorf("%s: %w", op, ErrInProgress)
			}

			lg.Error("idempotency claim failed", "err", err.Error())
			return nil, fmt.Errorf("%s: %w: %w", op, ErrDependencyFailure, err)
		}

		if !claimed {
			lg.Info("user_register_replayed",
				slog.String("id", prev.ID),
				slog.String("user_name", prev.UserName),
				slog.String("user_email", redact.Email(prev.UserEmail)),
			)

			return prev, nil
		}
	}

	if err := u.save(ctx, rec); err != nil {
		if u.idem != nil {
			relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
			if relErr := u.idem.Release(relCtx, idemKey); relErr != nil {
				lg.Warn("idempotency release failed", "err", relErr.Error())
			}
			cancel()
		}

		lg.Error("storage error on SaveUser", "err", err.Error())
		return nil, fmt.Errorf("%s: %w: %w", op, ErrDependencyFailure, err)
	}

	if u.idem != nil {
		if err := u.idem.Complete(ctx, idemKey, rec); err != nil {
			// Запись уже сохранена; повтор после истечения pending создаст новую.
			lg.Warn("idempotency complete failed", "err", err.Error())
		}
	}

	lg.Info("user_registered",
		slog.String("id", rec.ID),
		slog.String("user_name", rec.UserName),
		slog.String("user_email", redact.Email(rec.UserEmail)),
	)

	return &rec, nil
}

func (u *Users) claim(ctx context.Context, key string) (*models.UserRecord, bool, error) {
	start := time.Now()
	prev, claimed, err := u.idem.Claim(ctx, key)
	u.metrics.ObserveDependency(metrics.DependencyIdempotency, result(err, idempotency.ErrInProgress), time.Since(start))

	return prev, claimed, err
}

// save выполняет единственную запись под таймаутом хранилища.
func (u *Users) save(ctx context.Context, rec models.UserRecord) error {
	if u.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.storeTimeout)
		defer cancel()
	}

	start := time.Now()
	err := u.store.SaveUser(ctx, rec)
	err = withDeadline(ctx, err)
	u.metrics.ObserveDependency(metrics.DependencyStore, result(err, nil), time.Since(start))

	return err
}

// Ready проверяет доступность хранилища.
func (u *Users) Ready(ctx context.Context) error {
	const op = "service/users/Ready"

	if u.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.storeTimeout)
		defer cancel()
	}

	if err := u.store.Ping(ctx); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrDependencyFailure, withDeadline(ctx, err))
	}

	return nil
}

// withDeadline добавляет context.DeadlineExceeded, если драйвер вернул
// собственную ошибку таймаута, а дедлайн контекста уже истёк.
func withDeadline(ctx context.Context, err error) error {
	if err == nil || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", err, context.DeadlineExceeded)
	}

	return err
}

func result(err, reject error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case reject != nil && errors.Is(err, reject):
		return metrics.ResultReject
	case errors.Is(err, context.DeadlineExceeded):
		return metrics.ResultTimeout
	default:
		return metrics.ResultError
	}
}
