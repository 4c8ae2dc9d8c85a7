package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/perfume-decants/api/internal/domain"
	"github.com/perfume-decants/api/internal/platform/auth"
	"github.com/perfume-decants/api/internal/services"
)

type stubUserService struct {
	registerFn func(context.Context, services.RegisterCommand) (services.Session, error)
	loginFn    func(context.Context, services.LoginCommand) (services.Session, error)
	profileFn  func(context.Context, string) (domain.User, error)
	updateFn   func(context.Context, string, services.ProfileUpdate) (domain.User, error)
}

func (s *stubUserService) Register(ctx context.Context, cmd services.RegisterCommand) (services.Session, error) {
	if s.registerFn != nil {
		return s.registerFn(ctx, cmd)
	}
	return services.Session{}, errors.New("not implemented")
}

func (s *stubUserService) Login(ctx context.Context, cmd services.LoginCommand) (services.Session, error) {
	if s.loginFn != nil {
		return s.loginFn(ctx, cmd)
	}
	return services.Session{}, errors.New("not implemented")
}

func (s *stubUserService) GetProfile(ctx context.Context, userID string) (domain.User, error) {
	if s.profileFn != nil {
		return s.profileFn(ctx, userID)
	}
	return domain.User{}, errors.New("not implemented")
}

func (s *stubUserService) UpdateProfile(ctx context.Context, userID string, update services.ProfileUpdate) (domain.User, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, userID, update)
	}
	return domain.User{}, errors.New("not implemented")
}

func newAuthRouter(service services.UserService) *chi.Mux {
	handler := NewAuthHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/auth", handler.Routes)
	return router
}

func sampleUser() domain.User {
	created := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	return domain.User{
		ID:        "usr_1",
		Name:      "María Pérez",
		Email:     "maria@example.com",
		Role:      domain.UserRoleCustomer,
		CreatedAt: created,
	}
}

func TestAuthHandlersRegisterSuccess(t *testing.T) {
	var captured services.RegisterCommand
	service := &stubUserService{
		registerFn: func(_ context.Context, cmd services.RegisterCommand) (services.Session, error) {
			captured = cmd
			return services.Session{User: sampleUser(), Token: "jwt-123"}, nil
		},
	}
	router := newAuthRouter(service)

	body := `{
		"nombre":"María Pérez",
		"email":"maria@example.com",
		"password":"secreto123",
		"telefono":"+56911111111",
		"direccion":{"calle":"Av. Providencia 1234","ciudad":"Santiago","region":"RM","codigoPostal":"7500000"}
	}`
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.Email != "maria@example.com" || captured.Password != "secreto123" {
		t.Fatalf("unexpected command %+v", captured)
	}
	if captured.Address == nil || captured.Address.City != "Santiago" {
		t.Fatalf("expected address forwarded, got %#v", captured.Address)
	}

	var resp struct {
		User struct {
			ID   string `json:"id"`
			Role string `json:"rol"`
		} `json:"usuario"`
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.User.ID != "usr_1" || resp.User.Role != "customer" || resp.Token != "jwt-123" {
		t.Fatalf("unexpected payload %+v", resp)
	}
}

func TestAuthHandlersRegisterEmailTaken(t *testing.T) {
	service := &stubUserService{
		registerFn: func(context.Context, services.RegisterCommand) (services.Session, error) {
			return services.Session{}, services.ErrUserEmailTaken
		},
	}
	router := newAuthRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{"nombre":"María","email":"maria@example.com","password":"secreto123"}`))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["error"] != "email_taken" {
		t.Fatalf("expected email_taken, got %v", resp["error"])
	}
}

func TestAuthHandlersRegisterRejectsEmptyBody(t *testing.T) {
	router := newAuthRouter(&stubUserService{})

	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(""))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAuthHandlersLoginInvalidCredentials(t *testing.T) {
	service := &stubUserService{
		loginFn: func(context.Context, services.LoginCommand) (services.Session, error) {
			return services.Session{}, services.ErrUserInvalidCredentials
		},
	}
	router := newAuthRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"maria@example.com","password":"incorrecta"}`))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["error"] != "invalid_credentials" {
		t.Fatalf("expected invalid_credentials, got %v", resp["error"])
	}
}

func TestAuthHandlersLoginSuccess(t *testing.T) {
	lastAccess := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	service := &stubUserService{
		loginFn: func(_ context.Context, cmd services.LoginCommand) (services.Session, error) {
			if cmd.Email != "maria@example.com" {
				t.Fatalf("unexpected email %q", cmd.Email)
			}
			user := sampleUser()
			user.LastAccessAt = &lastAccess
			return services.Session{User: user, Token: "jwt-456"}, nil
		},
	}
	router := newAuthRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"maria@example.com","password":"secreto123"}`))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		User struct {
			LastAccess string `json:"ultimoAcceso"`
		} `json:"usuario"`
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token != "jwt-456" || resp.User.LastAccess == "" {
		t.Fatalf("unexpected payload %+v", resp)
	}
}

func TestAuthHandlersGetProfile(t *testing.T) {
	service := &stubUserService{
		profileFn: func(_ context.Context, userID string) (domain.User, error) {
			if userID != "usr_1" {
				t.Fatalf("expected usr_1, got %s", userID)
			}
			return sampleUser(), nil
		},
	}
	router := newAuthRouter(service)

	req := httptest.NewRequest(http.MethodGet, "/auth/perfil", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), customerIdentity()))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAuthHandlersGetProfileRequiresIdentity(t *testing.T) {
	router := newAuthRouter(&stubUserService{})

	req := httptest.NewRequest(http.MethodGet, "/auth/perfil", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthHandlersUpdateProfileForwardsPartialFields(t *testing.T) {
	var captured services.ProfileUpdate
	service := &stubUserService{
		updateFn: func(_ context.Context, _ string, update services.ProfileUpdate) (domain.User, error) {
			captured = update
			return sampleUser(), nil
		},
	}
	router := newAuthRouter(service)

	req := httptest.NewRequest(http.MethodPut, "/auth/perfil", strings.NewReader(`{"telefono":"+56922222222"}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), customerIdentity()))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.Phone == nil || *captured.Phone != "+56922222222" {
		t.Fatalf("expected phone forwarded, got %#v", captured.Phone)
	}
	if captured.Name != nil || captured.Password != nil || captured.Address != nil {
		t.Fatalf("expected omitted fields to stay nil, got %+v", captured)
	}
}
