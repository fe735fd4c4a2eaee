package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitcoach/internal/config"
	"fitcoach/internal/server"
)

type memMedia struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memMedia) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return int64(len(data)), nil
}

func (m *memMedia) URL(key string) string { return "https://media.test/" + key }

type api struct {
	t   *testing.T
	url string
}

func startAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.AppConfig{
		Environment: "test",
		Security: config.SecurityConfig{
			JWTAccessSecret: "handlers-access",
			JWTAccessTTL:    time.Minute,
			JWTRefreshTTL:   time.Hour,
			SignatureSecret: "handlers-signature",
			MaxSessions:     5,
			RefreshCookie:   "fc_refresh",
		},
		Realtime: config.RealtimeConfig{SendBuffer: 8, PingInterval: time.Second, WriteTimeout: time.Second},
	}
	app := server.Build(cfg, zerolog.Nop(), server.Backends{Media: &memMedia{objects: map[string][]byte{}}})
	srv := httptest.NewServer(server.NewEngine(cfg, zerolog.Nop(), app.Handlers))
	t.Cleanup(srv.Close)
	t.Cleanup(app.Hub.Close)
	return &api{t: t, url: srv.URL + "/api"}
}

func (a *api) do(method, path, token string, body any) (*http.Response, map[string]any) {
	a.t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(a.t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, a.url+path, r)
	require.NoError(a.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return a.send(req, token)
}

func (a *api) send(req *http.Request, token string) (*http.Response, map[string]any) {
	a.t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	data, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	if len(data) > 0 {
		require.NoError(a.t, json.Unmarshal(data, &out), string(data))
	}
	return resp, out
}

func (a *api) register(email, role string) string {
	a.t.Helper()
	resp, body := a.do(http.MethodPost, "/v1/auth/register", "", map[string]string{
		"email": email, "password": "secret123", "role": role,
	})
	require.Equal(a.t, http.StatusCreated, resp.StatusCode, body)
	token, _ := body["token"].(string)
	require.NotEmpty(a.t, token)
	return token
}

func TestHealthAndUnknownRoutes(t *testing.T) {
	a := startAPI(t)

	resp, body := a.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, body = a.do(http.MethodGet, "/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["error"])
}

func TestAuthLifecycle(t *testing.T) {
	a := startAPI(t)

	resp, body := a.do(http.MethodPost, "/v1/auth/register", "", map[string]string{
		"email": "coach@b.com", "password": "secret123", "name": "Coach", "role": "trainer",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	token := body["token"].(string)
	user := body["user"].(map[string]any)
	assert.Equal(t, "coach@b.com", user["email"])
	assert.Equal(t, []any{"trainer"}, user["roles"])

	var refresh *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "fc_refresh" {
			refresh = c
		}
	}
	require.NotNil(t, refresh)
	assert.True(t, refresh.HttpOnly)
	assert.Equal(t, "/api/v1/auth", refresh.Path)

	resp, body = a.do(http.MethodPost, "/v1/auth/register", "", map[string]string{"email": "COACH@b.com", "password": "secret123"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, body)

	resp, _ = a.do(http.MethodPost, "/v1/auth/register", "", map[string]string{"email": "short@b.com", "password": "123"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = a.do(http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "coach@b.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, body)

	resp, body = a.do(http.MethodGet, "/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "Coach", body["user"].(map[string]any)["name"])

	req, err := http.NewRequest(http.MethodPost, a.url+"/v1/auth/refresh", nil)
	require.NoError(t, err)
	req.AddCookie(refresh)
	resp, body = a.send(req, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	rotated := body["token"].(string)
	assert.NotEmpty(t, rotated)

	req, err = http.NewRequest(http.MethodPost, a.url+"/v1/auth/refresh", nil)
	require.NoError(t, err)
	req.AddCookie(refresh)
	resp, _ = a.send(req, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "spent refresh token")

	resp, body = a.do(http.MethodGet, "/v1/auth/sessions", rotated, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Len(t, body["sessions"], 1)

	resp, _ = a.do(http.MethodPost, "/v1/auth/logout", rotated, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = a.do(http.MethodGet, "/v1/auth/me", rotated, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "session_invalid", body["error"])
}

func TestWorkoutRoutesEnforceRoles(t *testing.T) {
	a := startAPI(t)
	coach := a.register("coach@b.com", "trainer")
	client := a.register("client@b.com", "client")

	resp, body := a.do(http.MethodPost, "/v1/workouts", client, map[string]any{"title": "Nope"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, body)

	resp, body = a.do(http.MethodPost, "/v1/workouts", coach, map[string]any{"title": "Leg day", "isTemplate": true})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	id := body["workout"].(map[string]any)["id"].(string)

	resp, body = a.do(http.MethodGet, "/v1/workouts/templates", coach, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["items"], 1)

	resp, _ = a.do(http.MethodDelete, "/v1/workouts/"+id, coach, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = a.do(http.MethodGet, "/v1/workouts", coach, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["items"])

	resp, _ = a.do(http.MethodGet, "/v1/workouts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func uploadRequest(t *testing.T, url, declared string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {`form-data; name="file"; filename="media"`},
		"Content-Type":        {declared},
	})
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req, err := http.NewRequest(http.MethodPost, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestExerciseMediaUploadUsesPartContentType(t *testing.T) {
	a := startAPI(t)
	coach := a.register("coach@b.com", "trainer")

	resp, body := a.do(http.MethodPost, "/v1/exercises", coach, map[string]string{"name": "Squat", "muscleGroup": "legs"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	id := body["exercise"].(map[string]any)["id"].(string)
	mediaURL := fmt.Sprintf("%s/v1/exercises/%s/media", a.url, id)

	svgDoc := []byte(`<svg xmlns="http://www.w3.org/2000/svg"><script>x()</script><circle r="2"/></svg>`)
	resp, body = a.send(uploadRequest(t, mediaURL, "image/svg+xml", svgDoc), coach)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	exercise := body["exercise"].(map[string]any)
	assert.True(t, strings.HasPrefix(exercise["mediaUrl"].(string), "https://media.test/exercises/"+id+"/"))

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	resp, body = a.send(uploadRequest(t, mediaURL, "image/jpeg", png), coach)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	assert.Contains(t, body["error"], "declared image/jpeg")
}
