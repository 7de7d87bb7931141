// redact маскирует персональные данные и секреты перед записью в логи.
package redact

import "strings"

// Email оставляет первые две руны локальной части и домен целиком.
func Email(s string) string {
	parts := strings.Split(s, "@")
	if len(parts) != 2 {
		return "***"
	}

	local, domain := []rune(parts[0]), parts[1]
	if len(local) > 2 {
		return string(local[:2]) + "***@" + domain
	}

	return "***@" + domain
}

// Authorization оставляет от заголовка только схему: "Bearer [REDACTED_TOKEN]".
// Пустой заголовок возвращается как есть, чтобы в логах было видно его отсутствие.
func Authorization(h string) string {
	h = strings.TrimSpace(h)
	if h == "" {
		return ""
	}

	scheme, _, found := strings.Cut(h, " ")
	if !found {
		return Token()
	}

	return scheme + " " + Token()
}

func Token() string { return "[REDACTED_TOKEN]" }
