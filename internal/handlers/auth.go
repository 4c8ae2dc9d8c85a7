package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/perfume-decants/api/internal/domain"
	"github.com/perfume-decants/api/internal/platform/auth"
	"github.com/perfume-decants/api/internal/platform/httpx"
	"github.com/perfume-decants/api/internal/services"
)

const maxAuthBodySize = 16 * 1024

// AuthHandlers exposes registration, login, and profile endpoints.
type AuthHandlers struct {
	authn *auth.Authenticator
	users services.UserService
}

// NewAuthHandlers constructs a new AuthHandlers instance.
func NewAuthHandlers(authn *auth.Authenticator, users services.UserService) *AuthHandlers {
	return &AuthHandlers{
		authn: authn,
		users: users,
	}
}

// Routes registers the /auth endpoints.
func (h *AuthHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/register", h.register)
	r.Post("/login", h.login)

	bearer := chi.Router(r)
	if h.authn != nil {
		bearer = r.With(h.authn.RequireAuth())
	}
	bearer.Get("/perfil", h.getProfile)
	bearer.Put("/perfil", h.updateProfile)
}

type addressBody struct {
	Street     string `json:"calle"`
	City       string `json:"ciudad"`
	Region     string `json:"region"`
	PostalCode string `json:"codigoPostal"`
}

type registerRequest struct {
	Name     string       `json:"nombre"`
	Email    string       `json:"email"`
	Password string       `json:"password"`
	Phone    string       `json:"telefono"`
	Address  *addressBody `json:"direccion"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateProfileRequest struct {
	Name     *string      `json:"nombre"`
	Phone    *string      `json:"telefono"`
	Address  *addressBody `json:"direccion"`
	Password *string      `json:"password"`
}

type sessionResponse struct {
	User  userPayload `json:"usuario"`
	Token string      `json:"token"`
}

type userResponse struct {
	User userPayload `json:"usuario"`
}

type userPayload struct {
	ID           string          `json:"id"`
	Name         string          `json:"nombre"`
	Email        string          `json:"email"`
	Role         string          `json:"rol"`
	Phone        string          `json:"telefono,omitempty"`
	Address      *addressPayload `json:"direccion,omitempty"`
	CreatedAt    string          `json:"createdAt"`
	LastAccessAt string          `json:"ultimoAcceso,omitempty"`
}

type addressPayload struct {
	Street     string `json:"calle"`
	City       string `json:"ciudad"`
	Region     string `json:"region"`
	PostalCode string `json:"codigoPostal"`
}

func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req registerRequest
	if err := h.decodeBody(ctx, w, r, &req); err != nil {
		return
	}

	session, err := h.users.Register(ctx, services.RegisterCommand{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
		Address:  addressFromBody(req.Address),
	})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, sessionResponse{
		User:  buildUserPayload(session.User),
		Token: session.Token,
	})
}

func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req loginRequest
	if err := h.decodeBody(ctx, w, r, &req); err != nil {
		return
	}

	session, err := h.users.Login(ctx, services.LoginCommand{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, sessionResponse{
		User:  buildUserPayload(session.User),
		Token: session.Token,
	})
}

func (h *AuthHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	user, err := h.users.GetProfile(ctx, identity.UserID)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, userResponse{User: buildUserPayload(user)})
}

func (h *AuthHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req updateProfileRequest
	if err := h.decodeBody(ctx, w, r, &req); err != nil {
		return
	}

	update := services.ProfileUpdate{
		Name:     req.Name,
		Phone:    req.Phone,
		Password: req.Password,
		Address:  addressFromBody(req.Address),
	}

	user, err := h.users.UpdateProfile(ctx, identity.UserID, update)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, userResponse{User: buildUserPayload(user)})
}

func (h *AuthHandlers) decodeBody(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) error {
	err := decodeJSONBody(r, maxAuthBodySize, dst)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
	return err
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UserID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func actorFromIdentity(identity *auth.Identity) services.Actor {
	return services.Actor{
		UserID: strings.TrimSpace(identity.UserID),
		Role:   domain.UserRole(strings.ToLower(strings.TrimSpace(identity.Role))),
	}
}

func addressFromBody(body *addressBody) *domain.Address {
	if body == nil {
		return nil
	}
	return &domain.Address{
		Street:     strings.TrimSpace(body.Street),
		City:       strings.TrimSpace(body.City),
		Region:     strings.TrimSpace(body.Region),
		PostalCode: strings.TrimSpace(body.PostalCode),
	}
}

func buildAddressPayload(addr domain.Address) addressPayload {
	return addressPayload{
		Street:     addr.Street,
		City:       addr.City,
		Region:     addr.Region,
		PostalCode: addr.PostalCode,
	}
}

func buildUserPayload(user domain.User) userPayload {
	payload := userPayload{
		ID:           user.ID,
		Name:         user.Name,
		Email:        user.Email,
		Role:         string(user.Role),
		Phone:        user.Phone,
		CreatedAt:    formatTime(user.CreatedAt),
		LastAccessAt: formatTimePtr(user.LastAccessAt),
	}
	if user.Address != nil {
		addr := buildAddressPayload(*user.Address)
		payload.Address = &addr
	}
	return payload
}

func writeUserError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrUserInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrUserEmailTaken):
		httpx.WriteError(ctx, w, httpx.NewError("email_taken", "email is already registered", http.StatusConflict))
	case errors.Is(err, services.ErrUserInvalidCredentials):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_credentials", "invalid email or password", http.StatusUnauthorized))
	case errors.Is(err, services.ErrUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("user_not_found", "user not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("user_error", "failed to process user request", http.StatusInternalServerError))
	}
}
