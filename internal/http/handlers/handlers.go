package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	apierrors "github.com/pribylovaa/user-intake/internal/errors"
	"github.com/pribylovaa/user-intake/internal/metrics"
	"github.com/pribylovaa/user-intake/internal/service"
)

// Handlers агрегирует зависимости REST-эндпойнтов.
type Handlers struct {
	Users   *service.Users
	Metrics metrics.Recorder
}

func New(users *service.Users, rec metrics.Recorder) *Handlers {
	if rec == nil {
		rec = metrics.Noop{}
	}

	return &Handlers{Users: users, Metrics: rec}
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// writeError пишет ошибку и учитывает исход запроса.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	h.Metrics.IncRequest(apierrors.Code(err))
	apierrors.WriteError(w, r, err)
}

// decodeBody разбирает ровно один JSON-объект. Неизвестные поля игнорируются,
// данные после объекта считаются ошибкой. Превышение лимита тела -> ErrPayloadTooLarge,
// прочее -> service.ErrMalformedInput.
func decodeBody(r *http.Request, value any) error {
	dec := json.NewDecoder(r.Body)

	if err := dec.Decode(value); err != nil {
		return bodyError(err)
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err != nil {
			return bodyError(err)
		}

		return fmt.Errorf("%w: trailing data", service.ErrMalformedInput)
	}

	return nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apierrors.ErrPayloadTooLarge
	}

	return fmt.Errorf("%w: %w", service.ErrMalformedInput, err)
}
