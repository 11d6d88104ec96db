package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"allhall/internal/domain"
	"allhall/internal/realtime"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// readEvent returns the next event name and data line, skipping comments.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "" && event != "":
			return event, data
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestLive_ProductsStreamFollowsChanges(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	hub := realtime.NewHub(client, zap.NewNop())

	var version atomic.Int64
	catalog := &stubCatalog{watch: func(ctx context.Context) (*realtime.Subscription, error) {
		return hub.Subscribe(ctx, func(context.Context) (any, error) {
			return []*domain.Product{{Name: "v" + string(rune('0'+version.Load()))}}, nil
		}, realtime.TopicCatalog)
	}}

	env := newTestEnv(t)
	live := NewLiveHandler(catalog, nil, nil, zap.NewNop())
	live.heartbeat = 20 * time.Millisecond
	live.RegisterRoutes(env.router, env.guards)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, "GET", srv.URL+"/api/live/products", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	body := bufio.NewReader(resp.Body)

	event, data := readEvent(t, body)
	assert.Equal(t, "snapshot", event)
	assert.Contains(t, data, `"name":"v0"`)

	version.Store(1)
	hub.Notify(context.Background(), realtime.TopicCatalog)
	event, data = readEvent(t, body)
	assert.Equal(t, "snapshot", event)
	assert.Contains(t, data, `"name":"v1"`)

	cancel()
	assert.Eventually(t, func() bool { return hub.Active() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestLive_PendingRequiresPrivilege(t *testing.T) {
	env := newTestEnv(t)
	NewLiveHandler(&stubCatalog{}, nil, nil, zap.NewNop()).RegisterRoutes(env.router, env.guards)

	_, token := env.login(domain.RoleSeller)
	assert.Equal(t, http.StatusForbidden, env.do("GET", "/api/live/admin/pending", token, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do("GET", "/api/live/cart", "", nil).Code)
}

func TestLive_PendingStreamEndsWhenAccessIsRevoked(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	hub := realtime.NewHub(client, zap.NewNop())

	var revoked atomic.Bool
	catalog := &stubCatalog{watchPending: func(ctx context.Context, actor domain.Session) (*realtime.Subscription, error) {
		return hub.Subscribe(ctx, func(context.Context) (any, error) {
			if revoked.Load() {
				return nil, fmt.Errorf("role is user: %w", domain.ErrPermissionDenied)
			}
			return []*domain.Product{{Name: "queued", Status: domain.ProductPending}}, nil
		}, realtime.TopicModeration, realtime.RoleTopic(actor.UserID))
	}}

	env := newTestEnv(t)
	live := NewLiveHandler(catalog, nil, nil, zap.NewNop())
	live.heartbeat = time.Hour
	live.RegisterRoutes(env.router, env.guards)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	admin, token := env.login(domain.RoleAdmin)
	req, err := http.NewRequest("GET", srv.URL+"/api/live/admin/pending", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := bufio.NewReader(resp.Body)

	event, data := readEvent(t, body)
	assert.Equal(t, "snapshot", event)
	assert.Contains(t, data, `"queued"`)

	revoked.Store(true)
	hub.Notify(context.Background(), realtime.RoleTopic(admin.UserID))

	event, data = readEvent(t, body)
	assert.Equal(t, "error", event)
	assert.Contains(t, data, "access revoked")

	rest, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.NotContains(t, string(rest), "queued")
	assert.Eventually(t, func() bool { return hub.Active() == 0 }, 2*time.Second, 10*time.Millisecond)
}
