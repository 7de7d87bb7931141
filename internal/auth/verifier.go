package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pribylovaa/user-intake/internal/models"
)

// KeySource отдаёт публичный ключ подписи по kid.
type KeySource interface {
	Key(ctx context.Context, kid string) (any, error)
}

// Options — параметры проверки токенов.
type Options struct {
	Secret   string    // общий секрет HS256; пусто — HS256 не принимается
	Keys     KeySource // ключи RS*/PS*/ES*/EdDSA; nil — асимметричные токены не принимаются
	Issuer   string
	Audience []string
	Leeway   time.Duration
	Timeout  time.Duration // общий дедлайн на проверку одного токена
}

// Verifier проверяет bearer-токены. Безопасен для конкурентного использования.
type Verifier struct {
	secret  []byte
	keys    KeySource
	timeout time.Duration
	parser  *jwt.Parser
}

var asymmetricMethods = []string{
	jwt.SigningMethodRS256.Alg(), jwt.SigningMethodRS384.Alg(), jwt.SigningMethodRS512.Alg(),
	jwt.SigningMethodPS256.Alg(), jwt.SigningMethodPS384.Alg(), jwt.SigningMethodPS512.Alg(),
	jwt.SigningMethodES256.Alg(), jwt.SigningMethodES384.Alg(), jwt.SigningMethodES512.Alg(),
	jwt.SigningMethodEdDSA.Alg(),
}

func NewVerifier(opts Options) (*Verifier, error) {
	const op = "auth/NewVerifier"

	var methods []string
	if opts.Secret != "" {
		methods = append(methods, jwt.SigningMethodHS256.Alg())
	}

	if opts.Keys != nil {
		methods = append(methods, asymmetricMethods...)
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("%s: neither secret nor key source configured", op)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(opts.Leeway),
	}

	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}

	if len(opts.Audience) > 0 {
		parserOpts = append(parserOpts, jwt.WithAudience(opts.Audience...))
	}

	return &Verifier{
		secret:  []byte(opts.Secret),
		keys:    opts.Keys,
		timeout: opts.Timeout,
		parser:  jwt.NewParser(parserOpts...),
	}, nil
}

// Verify проверяет токен и возвращает аутентифицированного вызывающего.
// Ошибки: ErrTokenExpired, ErrInvalidToken, ErrAuthorityUnavailable.
func (v *Verifier) Verify(ctx context.Context, token string) (*models.Principal, error) {
	const op = "auth/Verify"

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	claims := &jwt.RegisteredClaims{}

	_, err := v.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodHMAC:
			if len(v.secret) == 0 {
				return nil, ErrInvalidToken
			}

			return v.secret, nil
		default:
			if v.keys == nil {
				return nil, ErrInvalidToken
			}

			kid, _ := t.Header["kid"].(string)

			return v.keys.Key(ctx, kid)
		}
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrAuthorityUnavailable):
			return nil, fmt.Errorf("%s: %w", op, err)
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		default:
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}
	}

	return &models.Principal{
		Subject: claims.Subject,
		Issuer:  claims.Issuer,
	}, nil
}
