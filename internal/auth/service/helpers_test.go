package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/crm/internal/auth/domain"
	"github.com/aussiebroadwan/crm/internal/auth/service"
	"github.com/aussiebroadwan/crm/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/crm/pkg/cryptox"
	"github.com/aussiebroadwan/crm/pkg/idx"
	"github.com/aussiebroadwan/crm/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.ActivityEvent
}

func (r *recordingSink) Record(_ context.Context, ev domain.ActivityEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingSink) types() []domain.ActivityType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ActivityType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	store    *sqlite.Store
	clock    *fakeClock
	codec    *jwtx.Codec
	activity *recordingSink

	refresh   *service.RefreshService
	sessions  *service.SessionService
	users     *service.UserService
	bootstrap *service.BootstrapService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	clk := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec, err := jwtx.NewCodec([]byte(testSecret), jwtx.WithClock(clk.Now))
	require.NoError(t, err)

	f := &fixture{store: st, clock: clk, codec: codec, activity: &recordingSink{}}
	f.refresh = &service.RefreshService{Store: st, Now: clk.Now}
	f.sessions = &service.SessionService{
		Store:       st,
		Credentials: f.refresh,
		Tokens:      codec,
		Activity:    f.activity,
		Now:         clk.Now,
	}
	f.users = &service.UserService{
		Store:       st,
		Credentials: f.refresh,
		Activity:    f.activity,
		Now:         clk.Now,
	}
	f.bootstrap = &service.BootstrapService{Store: st, Token: "boot", Now: clk.Now}
	return f
}

func (f *fixture) tenant(t *testing.T, name string) domain.Tenant {
	t.Helper()
	tn := domain.Tenant{ID: idx.New().String(), Name: name, CreatedAt: f.clock.Now()}
	require.NoError(t, f.store.Tenants().CreateTenant(context.Background(), tn))
	return tn
}

func (f *fixture) user(t *testing.T, tenantID, email, password string, role domain.Role) domain.User {
	t.Helper()
	hash, err := cryptox.HashPassword(password)
	require.NoError(t, err)
	u := domain.User{
		ID:           idx.New().String(),
		TenantID:     tenantID,
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Test",
		LastName:     "User",
		Role:         role,
		Active:       true,
		CreatedAt:    f.clock.Now(),
		UpdatedAt:    f.clock.Now(),
	}
	require.NoError(t, f.store.Users().CreateUser(context.Background(), u))
	return u
}

func actorOf(u domain.User) service.Actor {
	return service.Actor{UserID: u.ID, TenantID: u.TenantID, Role: u.Role}
}

func ptr[T any](v T) *T { return &v }
