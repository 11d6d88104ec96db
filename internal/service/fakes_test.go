package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"allhall/internal/domain"
	"allhall/internal/realtime"
	"allhall/internal/repository"
	"allhall/internal/storecall"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// memDB backs every fake repository so checkout can see the cart.
type memDB struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*domain.User
	tokens   map[string]*domain.RefreshToken
	resets   map[string]*domain.PasswordReset
	roles    map[uuid.UUID]*domain.RoleRecord
	products map[uuid.UUID]*domain.Product
	lines    map[uuid.UUID]*domain.CartLine
	orders   map[uuid.UUID]*domain.Order
}

func newMemDB() *memDB {
	return &memDB{
		users:    make(map[uuid.UUID]*domain.User),
		tokens:   make(map[string]*domain.RefreshToken),
		resets:   make(map[string]*domain.PasswordReset),
		roles:    make(map[uuid.UUID]*domain.RoleRecord),
		products: make(map[uuid.UUID]*domain.Product),
		lines:    make(map[uuid.UUID]*domain.CartLine),
		orders:   make(map[uuid.UUID]*domain.Order),
	}
}

type memUsers struct{ db *memDB }

func (m memUsers) Create(_ context.Context, user *domain.User) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, u := range m.db.users {
		if u.Email == user.Email {
			return repository.ErrUserAlreadyExists
		}
	}
	cp := *user
	m.db.users[user.ID] = &cp
	return nil
}

func (m memUsers) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, u := range m.db.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m memUsers) FindByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if u, ok := m.db.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, repository.ErrUserNotFound
}

func (m memUsers) FindByProvider(_ context.Context, provider, subject string) (*domain.User, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, u := range m.db.users {
		if u.Provider == provider && u.ProviderSubject == subject {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m memUsers) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	u, ok := m.db.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

type memTokens struct{ db *memDB }

func (m memTokens) Create(_ context.Context, token *domain.RefreshToken) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	cp := *token
	m.db.tokens[token.Token] = &cp
	return nil
}

func (m memTokens) FindByToken(_ context.Context, token string) (*domain.RefreshToken, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	t, ok := m.db.tokens[token]
	if !ok {
		return nil, repository.ErrRefreshTokenNotFound
	}
	if t.Revoked {
		return nil, repository.ErrRefreshTokenRevoked
	}
	cp := *t
	return &cp, nil
}

func (m memTokens) Revoke(_ context.Context, userID uuid.UUID, token string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	t, ok := m.db.tokens[token]
	if !ok || t.UserID != userID {
		return repository.ErrRefreshTokenNotFound
	}
	t.Revoked = true
	return nil
}

func (m memTokens) RevokeAllForUser(_ context.Context, userID uuid.UUID) (int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var n int64
	for _, t := range m.db.tokens {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			n++
		}
	}
	return n, nil
}

type memResets struct{ db *memDB }

func (m memResets) Create(_ context.Context, reset *domain.PasswordReset) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	cp := *reset
	m.db.resets[reset.TokenHash] = &cp
	return nil
}

func (m memResets) Consume(_ context.Context, hash string, now time.Time) (*domain.PasswordReset, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	r, ok := m.db.resets[hash]
	if !ok || r.UsedAt != nil || now.After(r.ExpiresAt) {
		return nil, repository.ErrPasswordResetNotFound
	}
	r.UsedAt = &now
	cp := *r
	return &cp, nil
}

type memRoles struct{ db *memDB }

func (m memRoles) Ensure(_ context.Context, userID uuid.UUID, email string, role domain.Role, now time.Time) (*domain.RoleRecord, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if rec, ok := m.db.roles[userID]; ok {
		cp := *rec
		return &cp, nil
	}
	rec := &domain.RoleRecord{UserID: userID, Email: email, Role: role, CreatedAt: now, UpdatedAt: now}
	m.db.roles[userID] = rec
	cp := *rec
	return &cp, nil
}

func (m memRoles) FindByUserID(_ context.Context, userID uuid.UUID) (*domain.RoleRecord, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if rec, ok := m.db.roles[userID]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, repository.ErrRoleNotFound
}

func (m memRoles) UpdateRole(_ context.Context, userID uuid.UUID, role domain.Role) (*domain.RoleRecord, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	rec, ok := m.db.roles[userID]
	if !ok {
		return nil, repository.ErrRoleNotFound
	}
	rec.Role = role
	cp := *rec
	return &cp, nil
}

func (m memRoles) List(_ context.Context) ([]*domain.RoleRecord, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := make([]*domain.RoleRecord, 0, len(m.db.roles))
	for _, rec := range m.db.roles {
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

type memProducts struct{ db *memDB }

func (m memProducts) Create(_ context.Context, p *domain.Product) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	cp := *p
	m.db.products[p.ID] = &cp
	return nil
}

func (m memProducts) Update(_ context.Context, p *domain.Product) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.products[p.ID]; !ok {
		return repository.ErrProductNotFound
	}
	cp := *p
	m.db.products[p.ID] = &cp
	return nil
}

func (m memProducts) Delete(_ context.Context, id uuid.UUID) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.products[id]; !ok {
		return repository.ErrProductNotFound
	}
	delete(m.db.products, id)
	for lineID, l := range m.db.lines {
		if l.Snapshot.ProductID == id {
			delete(m.db.lines, lineID)
		}
	}
	return nil
}

func (m memProducts) FindByID(_ context.Context, id uuid.UUID) (*domain.Product, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if p, ok := m.db.products[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, repository.ErrProductNotFound
}

func (m memProducts) ListByStatus(_ context.Context, status domain.ProductStatus, order repository.SortOrder) ([]*domain.Product, error) {
	return m.filter(func(p *domain.Product) bool { return p.Status == status }, order), nil
}

func (m memProducts) ListBySeller(_ context.Context, sellerID uuid.UUID) ([]*domain.Product, error) {
	return m.filter(func(p *domain.Product) bool { return p.SellerID == sellerID }, repository.SortOrderDesc), nil
}

func (m memProducts) TransitionStatus(_ context.Context, id uuid.UUID, from, to domain.ProductStatus) (*domain.Product, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p, ok := m.db.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	if p.Status != from {
		return nil, repository.ErrProductAlreadyDecided
	}
	p.Status = to
	cp := *p
	return &cp, nil
}

func (m memProducts) filter(keep func(*domain.Product) bool, order repository.SortOrder) []*domain.Product {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := []*domain.Product{}
	for _, p := range m.db.products {
		if keep(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if order == repository.SortOrderAsc {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

type memCart struct{ db *memDB }

func (m memCart) AddOrMerge(_ context.Context, line *domain.CartLine) (*domain.CartLine, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, l := range m.db.lines {
		if l.UserID == line.UserID && l.Snapshot.ProductID == line.Snapshot.ProductID && l.Variant == line.Variant {
			l.Qty += line.Qty
			l.Snapshot = line.Snapshot
			cp := *l
			return &cp, nil
		}
	}
	cp := *line
	m.db.lines[line.ID] = &cp
	out := cp
	return &out, nil
}

func (m memCart) FindLine(_ context.Context, lineID uuid.UUID) (*domain.CartLine, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if l, ok := m.db.lines[lineID]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, repository.ErrCartLineNotFound
}

func (m memCart) ListByUser(_ context.Context, userID uuid.UUID) ([]domain.CartLine, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return m.db.cartOf(userID), nil
}

func (m memCart) SetQuantity(_ context.Context, lineID uuid.UUID, qty int) (*domain.CartLine, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	l, ok := m.db.lines[lineID]
	if !ok {
		return nil, repository.ErrCartLineNotFound
	}
	l.Qty = qty
	cp := *l
	return &cp, nil
}

func (m memCart) DeleteLine(_ context.Context, lineID uuid.UUID) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.lines[lineID]; !ok {
		return repository.ErrCartLineNotFound
	}
	delete(m.db.lines, lineID)
	return nil
}

func (db *memDB) cartOf(userID uuid.UUID) []domain.CartLine {
	out := []domain.CartLine{}
	for _, l := range db.lines {
		if l.UserID == userID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type memOrders struct{ db *memDB }

func (m memOrders) PlaceFromCart(_ context.Context, userID uuid.UUID, build repository.OrderBuilder) (*domain.Order, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	order, err := build(m.db.cartOf(userID))
	if err != nil {
		return nil, err
	}
	for id, l := range m.db.lines {
		if l.UserID == userID {
			delete(m.db.lines, id)
		}
	}
	cp := *order
	m.db.orders[order.ID] = &cp
	return order, nil
}

func (m memOrders) FindByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if o, ok := m.db.orders[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, repository.ErrOrderNotFound
}

func (m memOrders) ListByUser(_ context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	return m.filter(func(o *domain.Order) bool { return o.UserID == userID }), nil
}

func (m memOrders) ListAll(_ context.Context, status *domain.OrderStatus) ([]*domain.Order, error) {
	return m.filter(func(o *domain.Order) bool { return status == nil || o.Status == *status }), nil
}

func (m memOrders) UpdateStatus(_ context.Context, id uuid.UUID, from, to domain.OrderStatus) (*domain.Order, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	o, ok := m.db.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	if o.Status != from {
		return nil, repository.ErrOrderStatusChanged
	}
	o.Status = to
	cp := *o
	return &cp, nil
}

func (m memOrders) filter(keep func(*domain.Order) bool) []*domain.Order {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := []*domain.Order{}
	for _, o := range m.db.orders {
		if keep(o) {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// recordingHub captures notified topics.
type recordingHub struct {
	mu     sync.Mutex
	topics []string
}

func (h *recordingHub) Notify(_ context.Context, topics ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.topics = append(h.topics, topics...)
}

func (h *recordingHub) Subscribe(context.Context, realtime.FetchFunc, ...string) (*realtime.Subscription, error) {
	return nil, domain.ErrUnavailable
}

func (h *recordingHub) notified(topic string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range h.topics {
		if t == topic {
			return true
		}
	}
	return false
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *recordingPublisher) PublishEvent(_ context.Context, _ string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) all() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]any(nil), p.events...)
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	db        *memDB
	hub       *recordingHub
	publisher *recordingPublisher
	clock     *clock
	sessions  SessionResolver
	deps      Deps
}

func newFixture() *fixture {
	f := &fixture{
		db:        newMemDB(),
		hub:       &recordingHub{},
		publisher: &recordingPublisher{},
		clock:     newClock(),
	}
	f.deps = Deps{
		Store:     storecall.Policy{Timeout: time.Second, MaxAttempts: 1},
		Publisher: f.publisher,
		Live:      f.hub,
		Logger:    zap.NewNop(),
		Now:       f.clock.Now,
	}
	return f
}

func (f *fixture) catalog() CatalogService {
	return NewCatalogService(memProducts{f.db}, nil, f.sessions, f.deps)
}

func (f *fixture) cart() CartService {
	return NewCartService(memCart{f.db}, memProducts{f.db}, decimal.RequireFromString("5.00"), f.deps)
}

func (f *fixture) orders() OrderService {
	return NewOrderService(memOrders{f.db}, OrderPolicy{
		FlatShipping: decimal.RequireFromString("5.00"),
		CancelWindow: 24 * time.Hour,
	}, f.deps)
}

func session(role domain.Role) domain.Session {
	id := uuid.New()
	return domain.Session{UserID: id, Email: id.String()[:8] + "@example.com", Role: role}
}

// seedProduct stores a product directly, bypassing moderation.
func (f *fixture) seedProduct(seller uuid.UUID, status domain.ProductStatus, price string) *domain.Product {
	now := f.clock.Now()
	p := &domain.Product{
		ID:          uuid.New(),
		Name:        "Widget",
		Description: "A widget",
		Price:       decimal.RequireFromString(price),
		Img:         "https://img.example/w.png",
		Badges:      []string{domain.BadgeNew},
		Status:      status,
		SellerID:    seller,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_ = memProducts{f.db}.Create(context.Background(), p)
	f.clock.Advance(time.Second)
	return p
}
