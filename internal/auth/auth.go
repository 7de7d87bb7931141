// auth — аутентификация входящих запросов: разбор заголовка Authorization
// и проверка bearer-токена (подпись, exp, iss, aud) по общему секрету HS256
// или по ключам из JWKS-набора провайдера удостоверений.
package auth

import (
	"errors"
	"strings"
)

var (
	ErrMissingCredentials   = errors.New("missing credentials")
	ErrMalformedCredentials = errors.New("malformed credentials")
	ErrInvalidToken         = errors.New("invalid token")
	ErrTokenExpired         = errors.New("token expired")
	ErrAuthorityUnavailable = errors.New("identity authority unavailable")
	ErrUnknownKey           = errors.New("unknown signing key")
)

const bearerScheme = "bearer"

// ParseAuthorization разбирает "<scheme> <token>". Схема сравнивается без учёта регистра.
func ParseAuthorization(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingCredentials
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, bearerScheme) {
		return "", ErrMalformedCredentials
	}

	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", ErrMalformedCredentials
	}

	return token, nil
}
