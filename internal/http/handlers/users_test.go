package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/user-intake/internal/http/middleware"
	"github.com/pribylovaa/user-intake/internal/models"
	"github.com/pribylovaa/user-intake/internal/service"
	"github.com/pribylovaa/user-intake/mocks"
)

var principal = &models.Principal{Subject: "user-1"}

func newHandlersWithMocks(t *testing.T) (*Handlers, *mocks.MockUserStorage) {
	t.Helper()

	ctrl := gomock.NewController(t)
	ms := mocks.NewMockUserStorage(ctrl)

	return New(service.New(ms, service.Options{StoreTimeout: time.Second}), nil), ms
}

func postUsers(body string, withPrincipal bool) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(body))
	if withPrincipal {
		req = req.WithContext(middleware.WithPrincipal(req.Context(), principal))
	}

	return req
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()

	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))

	return env.Error.Code
}

func TestRegisterUser_OK(t *testing.T) {
	h, ms := newHandlersWithMocks(t)

	var saved models.UserRecord
	ms.EXPECT().SaveUser(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, rec models.UserRecord) error {
			saved = rec
			return nil
		}).
		Times(1)

	rr := httptest.NewRecorder()
	h.RegisterUser(rr, postUsers(`{"userName":"alice","userEmail":"alice@example.com","extra":true}`, true))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var resp RegisterUserResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "alice", resp.UserName)
	require.Equal(t, "Hello, alice. User record stored.", resp.Message)
	require.Equal(t, saved.ID, resp.ID)
	require.Equal(t, "alice@example.com", saved.UserEmail)
}

func TestRegisterUser_BadBodies(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{name: "empty body", body: "", wantCode: "malformed_input"},
		{name: "not json", body: "userName=alice", wantCode: "malformed_input"},
		{name: "truncated", body: `{"userName":"alice"`, wantCode: "malformed_input"},
		{name: "array", body: `[]`, wantCode: "malformed_input"},
		{name: "wrong type", body: `{"userName":5,"userEmail":"a@b.c"}`, wantCode: "malformed_input"},
		{name: "trailing object", body: `{"userName":"a","userEmail":"b"}{}`, wantCode: "malformed_input"},
		{name: "trailing garbage", body: `{"userName":"a","userEmail":"b"} x`, wantCode: "malformed_input"},
		{name: "null", body: `null`, wantCode: "invalid_input"},
		{name: "empty object", body: `{}`, wantCode: "invalid_input"},
		{name: "empty name", body: `{"userName":"","userEmail":"bob@example.com"}`, wantCode: "invalid_input"},
		{name: "blank email", body: `{"userName":"bob","userEmail":"  "}`, wantCode: "invalid_input"},
		{name: "missing email", body: `{"userName":"bob"}`, wantCode: "invalid_input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Ни одной записи: у мока нет ожиданий SaveUser.
			h, _ := newHandlersWithMocks(t)

			rr := httptest.NewRecorder()
			h.RegisterUser(rr, postUsers(tt.body, true))

			require.Equal(t, http.StatusBadRequest, rr.Code)
			require.Equal(t, tt.wantCode, errorCode(t, rr))
		})
	}
}

func TestRegisterUser_TrailingWhitespaceAccepted(t *testing.T) {
	h, ms := newHandlersWithMocks(t)
	ms.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Return(nil)

	rr := httptest.NewRecorder()
	h.RegisterUser(rr, postUsers("{\"userName\":\"a\",\"userEmail\":\"b\"}\n  \n", true))

	require.Equal(t, http.StatusOK, rr.Code)
}

func TestRegisterUser_NoPrincipal(t *testing.T) {
	h, _ := newHandlersWithMocks(t)

	rr := httptest.NewRecorder()
	h.RegisterUser(rr, postUsers(`{"userName":"alice","userEmail":"alice@example.com"}`, false))

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "unauthenticated", errorCode(t, rr))
}

func TestRegisterUser_StoreFailure_NoRecordDataInBody(t *testing.T) {
	h, ms := newHandlersWithMocks(t)
	ms.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Return(errors.New("write failed for alice@example.com"))

	rr := httptest.NewRecorder()
	h.RegisterUser(rr, postUsers(`{"userName":"alice","userEmail":"alice@example.com"}`, true))

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Equal(t, "dependency_failure", errorCode(t, rr))
	require.NotContains(t, rr.Body.String(), "alice")
}

func TestRegisterUser_StoreTimeout_504(t *testing.T) {
	h, ms := newHandlersWithMocks(t)
	ms.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Return(context.DeadlineExceeded)

	rr := httptest.NewRecorder()
	h.RegisterUser(rr, postUsers(`{"userName":"alice","userEmail":"alice@example.com"}`, true))

	require.Equal(t, http.StatusGatewayTimeout, rr.Code)
	require.Equal(t, "dependency_failure", errorCode(t, rr))
}

func TestRegisterUser_PayloadTooLarge(t *testing.T) {
	h, _ := newHandlersWithMocks(t)

	body := `{"userName":"` + strings.Repeat("a", 64) + `","userEmail":"a@b.c"}`
	req := postUsers("", true)
	rr := httptest.NewRecorder()
	req.Body = http.MaxBytesReader(rr, io.NopCloser(strings.NewReader(body)), 16)

	h.RegisterUser(rr, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	require.Equal(t, "payload_too_large", errorCode(t, rr))
}
