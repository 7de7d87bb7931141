package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/user-intake/internal/auth"
	"github.com/pribylovaa/user-intake/internal/metrics"
	"github.com/pribylovaa/user-intake/internal/models"
	"github.com/pribylovaa/user-intake/internal/service"
	"github.com/pribylovaa/user-intake/mocks"
)

const (
	testSecret = "router-secret"
	testIssuer = "https://issuer.example"
)

// Сквозные сценарии POST /api/users: настоящий Verifier (HS256), мок хранилища.
type routerFixture struct {
	srv   *httptest.Server
	store *mocks.MockUserStorage
	reg   *prometheus.Registry
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	store := mocks.NewMockUserStorage(ctrl)
	reg := prometheus.NewRegistry()
	rec := metrics.NewPrometheus(reg)

	verifier, err := auth.NewVerifier(auth.Options{Secret: testSecret, Issuer: testIssuer})
	require.NoError(t, err)

	users := service.New(store, service.Options{StoreTimeout: time.Second, Metrics: rec})

	h := NewRouter(users, verifier, Options{
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Timeout:      5 * time.Second,
		BasePath:     "/api",
		MaxBodyBytes: 1024,
		Metrics:      rec,
	})

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return &routerFixture{srv: srv, store: store, reg: reg}
}

func validToken(t *testing.T) string {
	t.Helper()

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    testIssuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	return tok
}

func (f *routerFixture) post(t *testing.T, authz, body string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/api/users", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}

	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, b
}

func errCode(t *testing.T, b []byte) string {
	t.Helper()

	var env struct {
		Error struct {
			Code      string `json:"code"`
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(b, &env))
	require.NotEmpty(t, env.Error.RequestID)

	return env.Error.Code
}

func TestRouter_ValidRequest_StoresOneRecord(t *testing.T) {
	f := newRouterFixture(t)

	var saved []models.UserRecord
	f.store.EXPECT().SaveUser(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, rec models.UserRecord) error {
			saved = append(saved, rec)
			return nil
		})

	before := time.Now().UTC()
	resp, body := f.post(t, "Bearer "+validToken(t), `{"userName":"alice","userEmail":"alice@example.com"}`)
	after := time.Now().UTC()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "alice")
	require.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	require.Len(t, saved, 1)
	require.Equal(t, "alice", saved[0].UserName)
	require.Equal(t, "alice@example.com", saved[0].UserEmail)
	require.Len(t, saved[0].ID, 36)
	require.Equal(t, time.UTC, saved[0].Timestamp.Location())
	require.False(t, saved[0].Timestamp.Before(before.Truncate(time.Second)))
	require.False(t, saved[0].Timestamp.After(after))

	require.Equal(t, 1.0, testutil.ToFloat64(requestsCounter(t, f.reg, "stored")))
}

func TestRouter_SecondIdenticalRequest_NewRecord(t *testing.T) {
	f := newRouterFixture(t)

	var ids []string
	f.store.EXPECT().SaveUser(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, rec models.UserRecord) error {
			ids = append(ids, rec.ID)
			return nil
		}).
		Times(2)

	token := validToken(t)
	for i := 0; i < 2; i++ {
		resp, _ := f.post(t, "Bearer "+token, `{"userName":"alice","userEmail":"alice@example.com"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	require.Len(t, ids, 2)
	require.NotEqual(t, ids[0], ids[1])
}

func TestRouter_Rejections_NoWrites(t *testing.T) {
	tests := []struct {
		name       string
		authz      func(t *testing.T) string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing authorization",
			authz:      func(*testing.T) string { return "" },
			body:       `{"userName":"alice","userEmail":"alice@example.com"}`,
			wantStatus: http.StatusUnauthorized,
			wantCode:   "unauthenticated",
		},
		{
			name:       "syntactically valid but invalid token",
			authz:      func(*testing.T) string { return "Bearer validtoken123" },
			body:       `{"userName":"alice","userEmail":"alice@example.com"}`,
			wantStatus: http.StatusUnauthorized,
			wantCode:   "unauthenticated",
		},
		{
			name:       "unauthenticated wins over malformed body",
			authz:      func(*testing.T) string { return "" },
			body:       `{not json`,
			wantStatus: http.StatusUnauthorized,
			wantCode:   "unauthenticated",
		},
		{
			name:       "malformed body",
			authz:      func(t *testing.T) string { return "Bearer " + validToken(t) },
			body:       `{not json`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "malformed_input",
		},
		{
			name:       "empty userName",
			authz:      func(t *testing.T) string { return "Bearer " + validToken(t) },
			body:       `{"userName":"","userEmail":"bob@example.com"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_input",
		},
		{
			name:       "empty userEmail",
			authz:      func(t *testing.T) string { return "Bearer " + validToken(t) },
			body:       `{"userName":"bob","userEmail":""}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_input",
		},
		{
			name:       "payload too large",
			authz:      func(t *testing.T) string { return "Bearer " + validToken(t) },
			body:       `{"userName":"` + strings.Repeat("a", 2048) + `","userEmail":"a@b.c"}`,
			wantStatus: http.StatusRequestEntityTooLarge,
			wantCode:   "payload_too_large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Мок без ожиданий SaveUser: любая запись провалит тест.
			f := newRouterFixture(t)

			resp, body := f.post(t, tt.authz(t), tt.body)

			require.Equal(t, tt.wantStatus, resp.StatusCode)
			require.Equal(t, tt.wantCode, errCode(t, body))
			require.Equal(t, 1.0, testutil.ToFloat64(requestsCounter(t, f.reg, tt.wantCode)))
		})
	}
}

func TestRouter_StoreFailure_DependencyFailure(t *testing.T) {
	f := newRouterFixture(t)
	f.store.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Return(io.ErrUnexpectedEOF)

	resp, body := f.post(t, "Bearer "+validToken(t), `{"userName":"alice","userEmail":"alice@example.com"}`)

	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, "dependency_failure", errCode(t, body))
	require.NotContains(t, string(body), "alice")
}

func TestRouter_UnknownRouteAndMethod(t *testing.T) {
	f := newRouterFixture(t)

	resp, err := f.srv.Client().Get(f.srv.URL + "/api/users")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = f.srv.Client().Get(f.srv.URL + "/users")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// requestsCounter достаёт счётчик исходов из реестра фикстуры.
func requestsCounter(t *testing.T, reg *prometheus.Registry, outcome string) prometheus.Collector {
	t.Helper()

	mfs, err := reg.Gather()
	require.NoError(t, err)

	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "tmp"})
	for _, mf := range mfs {
		if mf.GetName() != "user_intake_requests_total" {
			continue
		}

		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "outcome" && lp.GetValue() == outcome {
					c.Add(m.GetCounter().GetValue())
				}
			}
		}
	}

	return c
}
