package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"group-chat/internal/changefeed"
	"group-chat/internal/eventbus"
	"group-chat/internal/repository"
	"group-chat/internal/service"
	"group-chat/internal/stream"
)

type testAPI struct {
	router  *gin.Engine
	bus     *eventbus.MemoryBus
	manager *stream.Manager
	auth    *service.AuthService
}

// newTestAPI arma el router completo sobre repositorios en memoria y MemoryBus.
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	users := repository.NewMemoryUserRepository()
	members := repository.NewMemoryMembershipRepository()
	groups := repository.NewMemoryGroupRepository()
	messages := repository.NewMemoryMessageRepository(members, users)

	bus := eventbus.NewMemoryBus(16, nil)
	t.Cleanup(func() { _ = bus.Close() })

	auth := service.NewAuthService("test-secret", 15*time.Minute, time.Hour, service.NewMemoryRefreshTokenStore())
	manager := stream.NewManager(auth, members, bus, 0, logger)

	msgSvc := service.NewMessageService(logger, messages, members, changefeed.NewPublisher(bus, logger), nil, nil)
	r := NewRouter(
		logger,
		auth,
		NewUserHandler(logger, service.NewUserService(logger, users), auth),
		NewMessageHandler(logger, msgSvc),
		NewGroupHandler(logger, service.NewGroupService(logger, groups, members)),
		NewStreamHandler(logger, manager, bus),
	)
	return &testAPI{router: r, bus: bus, manager: manager, auth: auth}
}

func performRequest(r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

type authResponse struct {
	AccessToken string `json:"access_token"`
	Tokens      struct {
		RefreshToken string `json:"refresh_token"`
	} `json:"tokens"`
	User struct {
		ID   string `json:"uuid"`
		Name string `json:"name"`
	} `json:"user"`
}

// register devuelve (user id, access token).
func (a *testAPI) register(t *testing.T, name string) (string, string) {
	t.Helper()
	rec := performRequest(a.router, http.MethodPost, "/auth/register", "", map[string]string{"name": name})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d body=%s", name, rec.Code, rec.Body.String())
	}
	var resp authResponse
	decodeBody(t, rec, &resp)
	return resp.User.ID, resp.AccessToken
}

func (a *testAPI) createGroup(t *testing.T, token string) string {
	t.Helper()
	rec := performRequest(a.router, http.MethodPost, "/groups", token, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create group: expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Group struct {
			ID string `json:"uuid"`
		} `json:"group"`
	}
	decodeBody(t, rec, &resp)
	return resp.Group.ID
}

func (a *testAPI) join(t *testing.T, token, groupID string) {
	t.Helper()
	rec := performRequest(a.router, http.MethodPost, "/groups/"+groupID+"/join", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("join: expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for !cond() {
		select {
		case <-ctx.Done():
			t.Fatalf("condition not met before deadline")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
