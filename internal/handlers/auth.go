package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alextreichler/storefront/internal/models"
	"github.com/alextreichler/storefront/internal/store"
	"github.com/gorilla/csrf"
	"github.com/gorilla/sessions"
	"golang.org/x/crypto/bcrypt"
)

const sessionName = "storefront-session"

type ctxKey int

const userKey ctxKey = iota

// NewSessionStore returns the cookie store used for login sessions.
func NewSessionStore(key []byte, secure bool, domain string) *sessions.CookieStore {
	ss := sessions.NewCookieStore(key)
	ss.Options.HttpOnly = true
	ss.Options.Secure = secure
	ss.Options.SameSite = http.SameSiteLaxMode
	ss.Options.Path = "/"
	ss.Options.MaxAge = 7 * 24 * 3600
	if domain != "" {
		ss.Options.Domain = domain
	}
	return ss
}

type AuthHandler struct {
	Store        *store.Store
	SessionStore *sessions.CookieStore
}

type registerRequest struct {
	Email       string `json:"email" validate:"required,email,max=255"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	FirstName   string `json:"firstName" validate:"required,max=100"`
	LastName    string `json:"lastName" validate:"required,max=100"`
	Address     string `json:"address"`
	City        string `json:"city"`
	State       string `json:"state"`
	ZipCode     string `json:"zipCode"`
	Country     string `json:"country"`
	PhoneNumber string `json:"phoneNumber"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	u := &models.User{
		Email:       req.Email,
		Password:    string(hash),
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Role:        models.RoleUser,
		Address:     req.Address,
		City:        req.City,
		State:       req.State,
		ZipCode:     req.ZipCode,
		Country:     req.Country,
		PhoneNumber: req.PhoneNumber,
	}
	if err := h.Store.CreateUser(r.Context(), u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "conflict", "Email is already registered")
			return
		}
		writeServiceError(w, r, err)
		return
	}

	slog.Info("User registered", "user_id", u.ID)
	writeJSON(w, http.StatusCreated, u)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	user, err := h.Store.GetUserByEmail(r.Context(), req.Email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		writeServiceError(w, r, err)
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid email or password")
		return
	}

	session, _ := h.SessionStore.Get(r, sessionName)
	session.Values["authenticated"] = true
	session.Values["user_id"] = user.ID
	if err := session.Save(r, w); err != nil {
		slog.Error("Failed to save session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to save session")
		return
	}

	slog.Info("Login successful", "user_id", user.ID)
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session, _ := h.SessionStore.Get(r, sessionName)
	session.Values["authenticated"] = false
	delete(session.Values, "user_id")
	session.Options.MaxAge = -1 // Expire immediately
	if err := session.Save(r, w); err != nil {
		slog.Warn("Failed to clear session", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r))
}

// CSRFToken hands the token to API clients, which echo it in X-CSRF-Token.
func (h *AuthHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-CSRF-Token", csrf.Token(r))
	w.WriteHeader(http.StatusNoContent)
}

// RequireAuth loads the session user (with its current role) into the request
// context, or answers 401.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, _ := h.SessionStore.Get(r, sessionName)
		auth, _ := session.Values["authenticated"].(bool)
		id, ok := session.Values["user_id"].(int64)
		if !auth || !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
			return
		}

		user, err := h.Store.GetUserByID(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			slog.Info("Session refers to a deleted user", "user_id", id)
			writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
			return
		}
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin must run after RequireAuth.
func (h *AuthHandler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !currentUser(r).IsAdmin() {
			writeError(w, http.StatusForbidden, "forbidden", "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func currentUser(r *http.Request) *models.User {
	u, _ := r.Context().Value(userKey).(*models.User)
	return u
}

// canAccessUser reports whether the caller may act on userID's data.
func canAccessUser(caller *models.User, userID int64) bool {
	return caller.IsAdmin() || (caller != nil && caller.ID == userID)
}
