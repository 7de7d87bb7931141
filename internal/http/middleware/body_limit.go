package middleware

import (
	"net/http"
)

// BodyLimit ограничивает размер тела запроса через http.MaxBytesReader.
// Превышение обнаруживает декодер хендлера (*http.MaxBytesError -> 413).
func BodyLimit(n int64) Middleware {
	return func(next http.Handler) http.Handler {
		if n <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}
