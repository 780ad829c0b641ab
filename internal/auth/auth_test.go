package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/david/recovery-match/internal/models"
)

type staticDirectory map[uuid.UUID]models.Actor

func (d staticDirectory) ResolveActor(_ context.Context, id uuid.UUID) (models.Actor, error) {
	a, ok := d[id]
	if !ok {
		return a, ErrUnknownUser
	}
	return a, nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	s, err := NewService(nil, "test-secret", zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s
}

func TestTokenRoundTrip(t *testing.T) {
	s := newTestService(t)
	id := uuid.New()

	token, err := s.GenerateToken(id, models.RoleCaseManager)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := s.ParseToken(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != id {
		t.Fatalf("expected %s, got %s", id, got)
	}

	other, _ := NewService(nil, "another-secret", zap.NewNop())
	if _, err := other.ParseToken(token); err == nil {
		t.Fatal("expected token signed with another secret to be rejected")
	}
}

func TestParseToken_RejectsNoneAlgorithm(t *testing.T) {
	s := newTestService(t)
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": uuid.NewString()})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.ParseToken(signed); err == nil {
		t.Fatal("expected unsigned token to be rejected")
	}
}

func TestEphemeralSecret(t *testing.T) {
	a, err := NewService(nil, "", zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := NewService(nil, "  ", zap.NewNop())
	if len(a.secret) == 0 || string(a.secret) == string(b.secret) {
		t.Fatal("expected distinct random secrets")
	}
}

func TestValidateCredentials(t *testing.T) {
	if _, err := validateCredentials("nope", "longenough"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad email, got %v", err)
	}
	if _, err := validateCredentials("a@b.org", "short"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short password, got %v", err)
	}
	email, err := validateCredentials("  Case@Example.ORG ", "longenough")
	if err != nil || email != "case@example.org" {
		t.Fatalf("expected normalized email, got %q (%v)", email, err)
	}
}

func TestMiddlewareChain(t *testing.T) {
	s := newTestService(t)
	adminID := uuid.New()
	userID := uuid.New()
	dir := staticDirectory{
		adminID: {UserID: adminID, Role: models.RoleAdmin},
		userID:  {UserID: userID, Role: models.RoleUser},
	}

	e := echo.New()
	handler := func(c echo.Context) error {
		actor, err := ActorFromContext(c)
		if err != nil {
			return err
		}
		return c.String(http.StatusOK, string(actor.Role))
	}
	e.GET("/admin", handler, s.Middleware, LoadActor(dir), RequireRole(models.RoleAdmin, models.RoleSuperAdmin))

	adminToken, _ := s.GenerateToken(adminID, models.RoleAdmin)
	userToken, _ := s.GenerateToken(userID, models.RoleUser)
	strangerToken, _ := s.GenerateToken(uuid.New(), models.RoleAdmin)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"bad format", "Token abc", http.StatusUnauthorized},
		{"garbage token", "Bearer abc", http.StatusUnauthorized},
		{"unknown user", "Bearer " + strangerToken, http.StatusUnauthorized},
		{"plain user", "Bearer " + userToken, http.StatusForbidden},
		{"admin", "Bearer " + adminToken, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d (%s)", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}
