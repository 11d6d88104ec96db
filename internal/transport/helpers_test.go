package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"allhall/internal/domain"
	"allhall/internal/middleware"
	"allhall/internal/realtime"
	"allhall/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "transport-test-secret"

// roleDirectory resolves sessions from a fixed map, defaulting to user.
type roleDirectory map[uuid.UUID]domain.Role

func (d roleDirectory) ResolveSession(_ context.Context, userID uuid.UUID, email string) (domain.Session, error) {
	role, ok := d[userID]
	if !ok {
		role = domain.DefaultRole
	}
	return domain.Session{UserID: userID, Email: email, Role: role}, nil
}

type testEnv struct {
	t      *testing.T
	router chi.Router
	roles  roleDirectory
	guards Guards
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	tokens := service.NewAuthService(nil, nil, nil, nil, service.AuthConfig{Secret: testSecret}, service.Deps{Logger: logger})
	roles := roleDirectory{}

	router := chi.NewRouter()
	router.Use(middleware.ErrorHandlingMiddleware(logger))
	return &testEnv{
		t:      t,
		router: router,
		roles:  roles,
		guards: Guards{
			Auth:         middleware.AuthMiddleware(tokens, roles, logger),
			OptionalAuth: middleware.OptionalAuthMiddleware(tokens, roles, logger),
			Logger:       logger,
		},
	}
}

// login registers a user with role and returns its session and bearer token.
func (e *testEnv) login(role domain.Role) (domain.Session, string) {
	e.t.Helper()
	s := domain.Session{UserID: uuid.New(), Email: "u" + uuid.NewString()[:8] + "@example.com", Role: role}
	e.roles[s.UserID] = role

	claims := &service.Claims{
		UserID: s.UserID,
		Email:  s.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(e.t, err)
	return s, token
}

func (e *testEnv) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func errorKind(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp middleware.ErrorResponse
	decodeBody(t, w, &resp)
	return resp.Error.Kind
}

// Service stubs embed the interface so each test only supplies the calls it expects.

type stubCatalog struct {
	service.CatalogService
	listApproved func(ctx context.Context) ([]*domain.Product, error)
	get          func(ctx context.Context, actor domain.Session, id uuid.UUID) (*domain.Product, error)
	submit       func(ctx context.Context, actor domain.Session, draft domain.ProductDraft) (*domain.Product, error)
	approve      func(ctx context.Context, actor domain.Session, id uuid.UUID) (*domain.Product, error)
	upload       func(ctx context.Context, actor domain.Session, filename string, body io.Reader) (string, error)
	watch        func(ctx context.Context) (*realtime.Subscription, error)
	watchPending func(ctx context.Context, actor domain.Session) (*realtime.Subscription, error)
}

func (s *stubCatalog) ListApproved(ctx context.Context) ([]*domain.Product, error) {
	return s.listApproved(ctx)
}

func (s *stubCatalog) GetProduct(ctx context.Context, actor domain.Session, id uuid.UUID) (*domain.Product, error) {
	return s.get(ctx, actor, id)
}

func (s *stubCatalog) SubmitProduct(ctx context.Context, actor domain.Session, draft domain.ProductDraft) (*domain.Product, error) {
	return s.submit(ctx, actor, draft)
}

func (s *stubCatalog) Approve(ctx context.Context, actor domain.Session, id uuid.UUID) (*domain.Product, error) {
	return s.approve(ctx, actor, id)
}

func (s *stubCatalog) UploadImage(ctx context.Context, actor domain.Session, filename string, body io.Reader) (string, error) {
	return s.upload(ctx, actor, filename, body)
}

func (s *stubCatalog) WatchApproved(ctx context.Context) (*realtime.Subscription, error) {
	return s.watch(ctx)
}

func (s *stubCatalog) WatchPending(ctx context.Context, actor domain.Session) (*realtime.Subscription, error) {
	return s.watchPending(ctx, actor)
}

type stubCart struct {
	service.CartService
	add func(ctx context.Context, actor domain.Session, productID uuid.UUID, variant domain.Variant, qty int) (*domain.CartLine, error)
}

func (s *stubCart) AddToCart(ctx context.Context, actor domain.Session, productID uuid.UUID, variant domain.Variant, qty int) (*domain.CartLine, error) {
	return s.add(ctx, actor, productID, variant, qty)
}

type stubOrders struct {
	service.OrderService
	checkout func(ctx context.Context, actor domain.Session, shipTo domain.ShippingInfo) (*domain.Order, error)
	advance  func(ctx context.Context, actor domain.Session, id uuid.UUID, next domain.OrderStatus) (*domain.Order, error)
}

func (s *stubOrders) Checkout(ctx context.Context, actor domain.Session, shipTo domain.ShippingInfo) (*domain.Order, error) {
	return s.checkout(ctx, actor, shipTo)
}

func (s *stubOrders) AdvanceStatus(ctx context.Context, actor domain.Session, id uuid.UUID, next domain.OrderStatus) (*domain.Order, error) {
	return s.advance(ctx, actor, id, next)
}

type stubAuth struct {
	service.AuthService
	signUp    func(ctx context.Context, email, password string) (*service.AuthResult, error)
	signIn    func(ctx context.Context, email, password string) (*service.AuthResult, error)
	resetSent []string
}

func (s *stubAuth) SignUp(ctx context.Context, email, password string) (*service.AuthResult, error) {
	return s.signUp(ctx, email, password)
}

func (s *stubAuth) SignIn(ctx context.Context, email, password string) (*service.AuthResult, error) {
	return s.signIn(ctx, email, password)
}

func (s *stubAuth) SendPasswordReset(_ context.Context, email string) error {
	s.resetSent = append(s.resetSent, email)
	return nil
}
