package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"

	"github.com/pribylovaa/user-intake/pkg/log"
)

const jwksFlight = "jwks"

// JWKS — кэш публичных ключей провайдера удостоверений.
// Набор перечитывается при встрече неизвестного kid, но не чаще refresh,
// причём ограничение действует и после неудачной загрузки.
type JWKS struct {
	client  *resty.Client
	url     string
	refresh time.Duration
	now     func() time.Time
	flight  singleflight.Group

	mu          sync.RWMutex
	keys        map[string]any
	attemptedAt time.Time
	lastErr     error
}

// NewJWKS создаёт источник ключей; timeout ограничивает один HTTP-запрос к провайдеру.
func NewJWKS(url string, timeout, refresh time.Duration) *JWKS {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &JWKS{
		client:  client,
		url:     url,
		refresh: refresh,
		now:     time.Now,
		keys:    map[string]any{},
	}
}

// Key возвращает ключ по kid, при необходимости перечитывая набор.
// Пустой kid допустим, если в наборе ровно один ключ.
func (j *JWKS) Key(ctx context.Context, kid string) (any, error) {
	const op = "auth/JWKS.Key"

	if key, ok := j.lookup(kid); ok {
		return key, nil
	}

	if err := j.await(ctx, func() error {
		j.mu.RLock()
		attemptedAt, lastErr := j.attemptedAt, j.lastErr
		j.mu.RUnlock()

		if !attemptedAt.IsZero() && j.now().Sub(attemptedAt) < j.refresh {
			return lastErr
		}

		return j.fetch(context.WithoutCancel(ctx))
	}); err != nil {
		return nil, err
	}

	if key, ok := j.lookup(kid); ok {
		return key, nil
	}

	return nil, fmt.Errorf("%s: %w", op, ErrUnknownKey)
}

// Refresh безусловно загружает набор ключей. Любой сбой загрузки — ErrAuthorityUnavailable.
func (j *JWKS) Refresh(ctx context.Context) error {
	return j.await(ctx, func() error {
		return j.fetch(context.WithoutCancel(ctx))
	})
}

// await присоединяет вызывающего к текущей загрузке или запускает новую.
// Загрузка не держит блокировку: поиск закэшированных ключей не ждёт провайдера.
func (j *JWKS) await(ctx context.Context, fn func() error) error {
	const op = "auth/JWKS.await"

	ch := j.flight.DoChan(jwksFlight, func() (any, error) {
		return nil, fn()
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("%s: %w: %w", op, ErrAuthorityUnavailable, ctx.Err())
	}
}

func (j *JWKS) lookup(kid string) (any, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if kid == "" {
		if len(j.keys) != 1 {
			return nil, false
		}

		for _, k := range j.keys {
			return k, true
		}
	}

	key, ok := j.keys[kid]

	return key, ok
}

func (j *JWKS) fetch(ctx context.Context) error {
	keys, err := j.download(ctx)

	j.mu.Lock()
	defer j.mu.Unlock()

	j.attemptedAt = j.now()
	j.lastErr = err
	if err == nil {
		j.keys = keys
	}

	return err
}

func (j *JWKS) download(ctx context.Context) (map[string]any, error) {
	const op = "auth/JWKS.Refresh"

	resp, err := j.client.R().SetContext(ctx).Get(j.url)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrAuthorityUnavailable, err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("%s: %w: status %d", op, ErrAuthorityUnavailable, resp.StatusCode())
	}

	var set jwkset.JWKSMarshal
	if err := json.Unmarshal(resp.Body(), &set); err != nil {
		return nil, fmt.Errorf("%s: %w: decode: %w", op, ErrAuthorityUnavailable, err)
	}

	logger := log.From(ctx)

	keys := make(map[string]any, len(set.Keys))
	for _, m := range set.Keys {
		if m.USE != "" && m.USE != jwkset.UseSig {
			continue
		}

		k, err := jwkset.NewJWKFromMarshal(m, jwkset.JWKMarshalOptions{}, jwkset.JWKValidateOptions{})
		if err != nil {
			logger.Debug("jwk_skipped",
				slog.String("kid", m.KID),
				slog.String("kty", string(m.KTY)),
				slog.String("error", err.Error()),
			)
			continue
		}

		keys[m.KID] = k.Key()
	}

	return keys, nil
}
