// idempotency — защита от повторной регистрации одного и того же запроса.
// Ключ строится по содержимому запроса и вызывающему; первая попытка
// захватывает ключ маркером pending, успешная запись заменяет маркер на
// сохранённую запись, повтор получает её без новой записи в хранилище.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pribylovaa/user-intake/internal/models"
)

var (
	ErrInProgress = errors.New("request with the same content is in progress")
)

const pendingMarker = "pending"

// Store — Redis-хранилище ключей идемпотентности.
type Store struct {
	rdb        *redis.Client
	prefix     string
	ttl        time.Duration
	pendingTTL time.Duration
}

// New подключается к Redis по URL (redis://:pass@host:6379/0) и проверяет соединение.
// pendingTTL ограничивает жизнь незавершённого захвата; <=0 — равен ttl.
func New(ctx context.Context, redisURL, prefix string, ttl, pendingTTL time.Duration) (*Store, error) {
	const op = "idempotency/New"

	if prefix == "" {
		prefix = "intake:idem:"
	}

	if pendingTTL <= 0 || pendingTTL > ttl {
		pendingTTL = ttl
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := redis.NewClient(opt)

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Store{rdb: rdb, prefix: prefix, ttl: ttl, pendingTTL: pendingTTL}, nil
}

// Key — sha256 от вызывающего и содержимого запроса.
func Key(subject, userName, userEmail string) string {
	h := sha256.New()
	for _, part := range []string{subject, userName, userEmail} {
		// Длина перед значением исключает коллизии на границах полей.
		fmt.Fprintf(h, "%d:%s|", len(part), part)
	}

	return hex.EncodeToString(h.Sum(nil))
}

func (s *Store) key(k string) string { return s.prefix + k }

// Claim захватывает ключ.
// (nil, true, nil) — ключ захвачен, вызывающий должен выполнить запись и вызвать Complete или Release.
// (rec, false, nil) — запрос уже выполнен, rec — сохранённый результат.
// ErrInProgress — ключ захвачен другим незавершённым запросом.
func (s *Store) Claim(ctx context.Context, key string) (*models.UserRecord, bool, error) {
	const op = "idempotency/Claim"

	// Вторая попытка нужна, если ключ истёк между SETNX и GET.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.rdb.SetNX(ctx, s.key(key), pendingMarker, s.pendingTTL).Result()
		if err != nil {
			return nil, false, fmt.Errorf("%s: %w", op, err)
		}

		if ok {
			return nil, true, nil
		}

		val, err := s.rdb.Get(ctx, s.key(key)).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}

		if err != nil {
			return nil, false, fmt.Errorf("%s: %w", op, err)
		}

		if val == pendingMarker {
			return nil, false, fmt.Errorf("%s: %w", op, ErrInProgress)
		}

		var rec models.UserRecord
		if err := json.Unmarshal([]byte(val), &rec); err != nil {
			return nil, false, fmt.Errorf("%s: decode: %w", op, err)
		}

		return &rec, false, nil
	}

	return nil, false, fmt.Errorf("%s: %w", op, ErrInProgress)
}

// Complete сохраняет результат под захваченным ключом на ttl.
func (s *Store) Complete(ctx context.Context, key string, rec models.UserRecord) error {
	const op = "idempotency/Complete"

	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.rdb.Set(ctx, s.key(key), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Release снимает захват после неудачной записи, чтобы запрос можно было повторить.
func (s *Store) Release(ctx context.Context, key string) error {
	const op = "idempotency/Release"

	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

func (s *Store) Close() error { return s.rdb.Close() }
