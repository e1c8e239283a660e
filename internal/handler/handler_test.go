package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashwinyue/sanctuary/internal/config"
	"github.com/ashwinyue/sanctuary/internal/handler"
	"github.com/ashwinyue/sanctuary/internal/middleware"
	"github.com/ashwinyue/sanctuary/internal/repository"
	"github.com/ashwinyue/sanctuary/internal/router"
	"github.com/ashwinyue/sanctuary/internal/service"
	"github.com/ashwinyue/sanctuary/internal/service/event"
	"github.com/ashwinyue/sanctuary/internal/service/file"
	"github.com/ashwinyue/sanctuary/internal/testutil"
)

const (
	testEmail    = "me@example.com"
	testPassword = "correct horse battery"
)

type testEnv struct {
	t      *testing.T
	router *gin.Engine
	svc    *service.Services
	model  *testutil.FakeChatModel
	token  string
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestEnv(t *testing.T, limiter *middleware.FixedWindowLimiter) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:     "test-secret",
			TokenTTLHours: 1,
			AllowedEmails: []string{testEmail},
		},
		Storage: config.StorageConfig{
			Type:  "local",
			Local: config.LocalStorageConfig{BaseURL: "/api/v1/album"},
		},
	}
	storage, err := file.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	fake := &testutil.FakeChatModel{}
	svc := service.NewServices(repository.NewRepositories(db.DB), cfg, nil, fake, storage)
	t.Cleanup(svc.Relay.Wait)

	env := &testEnv{
		t:      t,
		router: router.SetupRouter(handler.NewHandlers(svc), svc, limiter),
		svc:    svc,
		model:  fake,
	}
	env.login()
	return env
}

func (e *testEnv) login() {
	w := e.request(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email": testEmail, "password": testPassword,
	})
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())

	w = e.request(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": testEmail, "password": testPassword,
	})
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	e.decode(w, &resp)
	e.token = resp.Token
}

func (e *testEnv) request(method, path string, body interface{}) *httptest.ResponseRecorder {
	return e.requestContext(context.Background(), method, path, body)
}

func (e *testEnv) requestContext(ctx context.Context, method, path string, body interface{}) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) decode(w *httptest.ResponseRecorder, out interface{}) {
	e.t.Helper()
	var env envelope
	require.NoError(e.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if out != nil {
		require.NoError(e.t, json.Unmarshal(env.Data, out))
	}
}

func (e *testEnv) createConversation() string {
	e.t.Helper()
	w := e.request(http.MethodPost, "/api/v1/conversations", map[string]string{})
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	var conv struct {
		ID string `json:"id"`
	}
	e.decode(w, &conv)
	return conv.ID
}

// dataOf 返回响应信封中的 data 原文
func dataOf(t *testing.T, body []byte) string {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(body, &env), string(body))
	return string(env.Data)
}

func parseEvents(t *testing.T, body []byte) []event.Event {
	t.Helper()
	var d event.Decoder
	events := d.Feed(body)
	assert.Zero(t, d.Pending())
	return events
}
