// errors стандартизирует ответы об ошибках HTTP-слоя.
// На вход он принимает ошибку сервисного слоя (sentinel из internal/service),
// а на выход даёт:
//   - корректный HTTP-статус;
//   - краткое безопасное message без утечки деталей (ни токенов, ни строк подключения).
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pribylovaa/user-intake/internal/service"
)

// ErrPayloadTooLarge — тело запроса больше http.max_body_bytes.
var ErrPayloadTooLarge = errors.New("payload too large")

// APIError — единый формат ошибки.
// Code — короткий стабильный машиночитаемый код.
// Message — безопасное человекочитаемое описание.
// RequestID — прокидывается из X-Request-Id, если есть.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse — корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP конвертирует ошибку в HTTP-статус и унифицированный ответ.
//
// Маппинг:
//   - ErrUnauthenticated -> 401
//   - ErrMalformedInput, ErrInvalidInput -> 400
//   - ErrInProgress -> 409
//   - ErrPayloadTooLarge -> 413
//   - ErrDependencyFailure -> 503, а при истёкшем дедлайне 504
//   - nil и прочее -> 500/internal (nil — программная ошибка вызова, 200 с телом ошибки не отдаём)
func ToHTTP(err error) (int, ErrorResponse) {
	status, code, msg := classify(err)

	return status, ErrorResponse{
		Error: APIError{
			Code:    code,
			Message: msg,
		},
	}
}

// Code возвращает машиночитаемый код ошибки (он же исход запроса в метриках).
func Code(err error) string {
	_, code, _ := classify(err)
	return code
}

// WriteError — хелпер для HTTP-хендлеров и мидлваров.
// Пишет статус/тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func classify(err error) (int, string, string) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, "internal", "internal error"
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated", "unauthenticated"
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, "payload_too_large", "payload too large"
	case errors.Is(err, service.ErrMalformedInput):
		return http.StatusBadRequest, "malformed_input", "request body is not valid JSON"
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input", "userName and userEmail are required"
	case errors.Is(err, service.ErrInProgress):
		return http.StatusConflict, "in_progress", "request with the same content is in progress"
	case errors.Is(err, service.ErrDependencyFailure) && errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "dependency_failure", "dependency timeout"
	case errors.Is(err, service.ErrDependencyFailure):
		return http.StatusServiceUnavailable, "dependency_failure", "dependency unavailable"
	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}
