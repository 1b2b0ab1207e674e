package service

import (
	"context"
	"testing"

	"github.com/helpdesk-labs/ticket-tracker/internal/config"
	"github.com/helpdesk-labs/ticket-tracker/internal/domain"
	"github.com/helpdesk-labs/ticket-tracker/internal/repository"
	apperrors "github.com/helpdesk-labs/ticket-tracker/pkg/util/errorutil"
)

type countingCache struct {
	users map[string]*domain.User
	hits  int
}

func (c *countingCache) GetTicket(context.Context, string) (*domain.Ticket, bool) { return nil, false }
func (c *countingCache) SetTicket(context.Context, *domain.Ticket)                {}
func (c *countingCache) InvalidateTicket(context.Context, string)                 {}

func (c *countingCache) GetUser(_ context.Context, id string) (*domain.User, bool) {
	user, ok := c.users[id]
	if ok {
		c.hits++
	}
	return user, ok
}

func (c *countingCache) SetUser(_ context.Context, user *domain.User) {
	c.users[user.ID] = user
}

func newUserService(t *testing.T) (*UserService, *repository.MemoryStore, *countingCache) {
	t.Helper()
	cfg := config.Config{Auth: config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTLMinutes: 5, BcryptCost: 4}}
	store := repository.NewMemoryStore()
	c := &countingCache{users: map[string]*domain.User{}}
	return NewUserService(cfg, UserDependencies{UserRepo: store.Users(), Cache: c}), store, c
}

func TestRegisterCreatesClient(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()

	user, token, _, err := svc.Register(ctx, "Carla", " Carla@Example.com ", "s3cret-pass")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if user.Role != domain.RoleClient {
		t.Fatalf("role = %s, want client", user.Role)
	}
	if user.Email != "carla@example.com" {
		t.Fatalf("email = %q", user.Email)
	}
	claims, err := svc.TokenManager().ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != user.ID || claims.Role != domain.RoleClient {
		t.Fatalf("claims = %+v", claims)
	}

	_, _, _, err = svc.Register(ctx, "Carla 2", "carla@example.com", "another-pass")
	assertCode(t, err, apperrors.CodeConflict)
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newUserService(t)
	cases := []struct {
		name, user, email, password string
	}{
		{"no name", "", "a@example.com", "long-enough"},
		{"bad email", "A", "not-an-email", "long-enough"},
		{"short password", "A", "a@example.com", "short"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, _, err := svc.Register(context.Background(), tc.user, tc.email, tc.password)
			assertCode(t, err, apperrors.CodeValidation)
		})
	}
}

func TestLogin(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()
	if _, _, _, err := svc.Register(ctx, "Dan", "dan@example.com", "correct-horse"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	user, token, _, err := svc.Login(ctx, "DAN@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if token == "" || user.Email != "dan@example.com" {
		t.Fatalf("user = %+v token = %q", user, token)
	}

	_, _, _, err = svc.Login(ctx, "dan@example.com", "wrong")
	assertCode(t, err, apperrors.CodeUnauthorized)
	_, _, _, err = svc.Login(ctx, "nobody@example.com", "correct-horse")
	assertCode(t, err, apperrors.CodeUnauthorized)
}

func TestCreateUserAdminOnly(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()
	admin := &domain.Principal{ActorID: "a", Role: domain.RoleAdmin}
	operator := &domain.Principal{ActorID: "o", Role: domain.RoleOperator}

	user, err := svc.CreateUser(ctx, admin, NewUser{Name: "Olga", Email: "olga@example.com", Password: "password1", Role: "operator"})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if user.Role != domain.RoleOperator {
		t.Fatalf("role = %s", user.Role)
	}

	_, err = svc.CreateUser(ctx, operator, NewUser{Name: "X", Email: "x@example.com", Password: "password1", Role: "admin"})
	assertCode(t, err, apperrors.CodeForbidden)
	_, err = svc.CreateUser(ctx, admin, NewUser{Name: "X", Email: "x@example.com", Password: "password1", Role: "root"})
	assertCode(t, err, apperrors.CodeValidation)
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()

	first, created, err := svc.EnsureAdmin(ctx, "Root", "root@example.com", "bootstrap-pass")
	if err != nil || !created {
		t.Fatalf("EnsureAdmin() = %v, %v", created, err)
	}
	if first.Role != domain.RoleAdmin {
		t.Fatalf("role = %s", first.Role)
	}
	second, created, err := svc.EnsureAdmin(ctx, "Root", "root@example.com", "bootstrap-pass")
	if err != nil || created {
		t.Fatalf("second EnsureAdmin() = %v, %v", created, err)
	}
	if second.ID != first.ID {
		t.Fatalf("second admin %s, want %s", second.ID, first.ID)
	}
}

func TestGetUserReadsThroughCache(t *testing.T) {
	svc, _, c := newUserService(t)
	ctx := context.Background()
	user, _, _, err := svc.Register(ctx, "Eve", "eve@example.com", "password1")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		got, err := svc.GetUser(ctx, user.ID)
		if err != nil {
			t.Fatalf("GetUser() error = %v", err)
		}
		if got.ID != user.ID {
			t.Fatalf("id = %s", got.ID)
		}
	}
	if c.hits != 1 {
		t.Fatalf("cache hits = %d, want 1", c.hits)
	}

	_, err = svc.GetUser(ctx, "missing")
	assertCode(t, err, apperrors.CodeNotFound)
}
