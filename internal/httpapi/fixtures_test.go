package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tt360.co/crm/internal/auth"
	"tt360.co/crm/internal/errs"
	"tt360.co/crm/internal/inventory"
	"tt360.co/crm/internal/query"
)

const testPassword = "correct-horse-battery"

var (
	testSecret   = base64.RawURLEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef-api"))
	passwordHash = sync.OnceValues(func() (string, error) { return auth.HashPassword(testPassword) })
)

// userStore serves the principal lookups; RBAC methods not overridden panic.
type userStore struct {
	auth.RBACStore

	mu      sync.Mutex
	users   map[string]*auth.User
	lookups int
}

func (s *userStore) FindUserByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	u, ok := s.users[email]
	if !ok {
		return nil, errs.NotFound("user %s not found", email)
	}
	cp := *u
	return &cp, nil
}

func (s *userStore) ListUsers(_ context.Context, page query.Page) ([]auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	return out, nil
}

func (s *userStore) GetUser(_ context.Context, id int64) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, errs.NotFound("user %d not found", id)
}

func (s *userStore) Lookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

type denylist struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func (d *denylist) Revoke(_ context.Context, jti string, until time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.revoked[jti] = until
	return nil
}

func (d *denylist) IsRevoked(_ context.Context, jti string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.revoked[jti]
	return ok, nil
}

// itemStore backs the item and category endpoints exercised by the tests.
type itemStore struct {
	inventory.Store

	mu         sync.Mutex
	items      map[int64]inventory.Item
	categories map[int64]inventory.Category
	lastFilter inventory.ItemFilter
	lastPage   query.Page
}

func (s *itemStore) ListItems(_ context.Context, f inventory.ItemFilter, page query.Page) ([]inventory.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFilter, s.lastPage = f, page
	out := make([]inventory.Item, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it)
	}
	return out, nil
}

func (s *itemStore) CountItems(_ context.Context, f inventory.ItemFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFilter = f
	return int64(len(s.items)), nil
}

func (s *itemStore) GetItem(_ context.Context, id int64) (*inventory.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return nil, errs.NotFound("item %d not found", id)
	}
	return &it, nil
}

func (s *itemStore) CategoryNameExists(_ context.Context, name string, exceptID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.categories {
		if id != exceptID && strings.EqualFold(c.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (s *itemStore) CreateCategory(_ context.Context, c *inventory.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = int64(len(s.categories) + 1)
	s.categories[c.ID] = *c
	return nil
}

func (s *itemStore) DeleteCategory(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[id]; !ok {
		return errs.NotFound("category %d not found", id)
	}
	delete(s.categories, id)
	return nil
}

type fixture struct {
	handler http.Handler
	tokens  *auth.TokenService
	users   *userStore
	deny    *denylist
	items   *itemStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hash, err := passwordHash()
	require.NoError(t, err)

	clerkRole := &auth.Role{ID: 2, Name: "BODEGUERO", Permissions: []auth.Permission{
		{ID: 1, Name: auth.CreatePerm(auth.ResourceCategory)},
		{ID: 2, Name: auth.EditPerm(auth.ResourceItem)},
	}}
	users := &userStore{users: map[string]*auth.User{
		"admin@tt360.co": {
			ID: 1, Name: "Admin", Email: "admin@tt360.co", PasswordHash: hash, Active: true,
			Role: &auth.Role{ID: 1, Name: auth.AdminRole},
		},
		"bodega@tt360.co": {
			ID: 2, Name: "Bodega", Email: "bodega@tt360.co", PasswordHash: hash, Active: true, Role: clerkRole,
		},
		"inactivo@tt360.co": {
			ID: 3, Name: "Inactivo", Email: "inactivo@tt360.co", PasswordHash: hash, Active: false, Role: clerkRole,
		},
	}}
	deny := &denylist{revoked: map[string]time.Time{}}
	items := &itemStore{
		items: map[int64]inventory.Item{
			7: {ID: 7, SKU: "CAB-001", Name: "Cable UTP", Price: 1500, Stock: 3, CategoryID: 1, WarehouseID: 1},
		},
		categories: map[int64]inventory.Category{},
	}

	tokens, err := auth.NewTokenService(testSecret, time.Hour)
	require.NoError(t, err)
	authSvc, err := auth.NewService(users, tokens, auth.WithDenylist(deny))
	require.NoError(t, err)
	rbac, err := auth.NewRBACService(users)
	require.NoError(t, err)
	inv, err := inventory.NewService(items)
	require.NoError(t, err)

	api := New(ReadyProbe{}, "test", Services{Auth: authSvc, RBAC: rbac, Inventory: inv}, WithRateLimit(1000, 1000))
	return &fixture{handler: api.Handler(), tokens: tokens, users: users, deny: deny, items: items}
}

func (f *fixture) token(t *testing.T, email string) string {
	t.Helper()
	tok, err := f.tokens.Issue(email)
	require.NoError(t, err)
	return tok.Value
}

// do sends a request; an empty token sends no Authorization header.
func (f *fixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = "192.0.2.10:4321"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body
}
