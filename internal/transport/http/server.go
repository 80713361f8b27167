// transport/http содержит HTTP-эндпоинты auth-сервиса.
// Здесь выполняется только маппинг данных и ошибок доменного слоя (service) в HTTP.
// Вся валидация и бизнес-логика находятся в пакете service.
//
// Принципы:
//   - Контекст запроса прокидывается в сервис без потерь;
//   - Ошибки сервиса явно транслируются в статусы:
//   - ErrInvalidEmail/ErrWeakPassword/ErrEmptyPassword -> 400;
//   - ErrEmailTaken -> 409;
//   - ErrInvalidCredentials/ErrInvalidToken/ErrTokenExpired/
//     ErrTokenRevoked/ErrUserNotFound -> 401 с единым сообщением;
//   - ErrReuseDetected -> 403 (вызывающий и так держал валидно выглядевший
//     токен — отдельный статус не помогает свежему атакующему);
//   - иные ошибки -> 500 c единым безопасным сообщением;
//   - GET /auth/validate при невалидном/просроченном токене НЕ возвращает
//     ошибку, а отдаёт {"valid": false} (контракт эндпоинта).
//
// Refresh-токен передаётся httpOnly-кукой (SameSite=Strict); для
// не-браузерных клиентов поддерживается поле refresh_token в теле запроса.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"auth-service/internal/config"
	"auth-service/internal/pkg/log"
	"auth-service/internal/service"
)

const refreshCookieName = "refresh_token"

type Server struct {
	service       *service.Service
	cfg           config.AuthConfig
	secureCookies bool
}

// NewServer создаёт HTTP-обвязку поверх сервисного слоя.
// secureCookies включает флаг Secure у refresh-куки (prod).
func NewServer(svc *service.Service, cfg config.AuthConfig, secureCookies bool) *Server {
	return &Server{
		service:       svc,
		cfg:           cfg,
		secureCookies: secureCookies,
	}
}

// Routes регистрирует эндпоинты сервиса на переданном mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.HandleFunc("GET /auth/validate", s.handleValidate)
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type userSummary struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type authResponse struct {
	AccessToken     string       `json:"access_token"`
	AccessExpiresAt int64        `json:"access_expires_at"`
	User            *userSummary `json:"user,omitempty"`
}

type validateResponse struct {
	Valid  bool   `json:"valid"`
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	pair, user, err := s.service.RegisterUser(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeServiceError(w, r.Context(), err)
		return
	}

	s.setRefreshCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusCreated, authResponse{
		AccessToken:     pair.AccessToken,
		AccessExpiresAt: pair.AccessExpiresAt.Unix(),
		User:            &userSummary{ID: user.ID.String(), Email: user.Email, Role: user.Role},
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	pair, user, err := s.service.LoginUser(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeServiceError(w, r.Context(), err)
		return
	}

	s.setRefreshCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusOK, authResponse{
		AccessToken:     pair.AccessToken,
		AccessExpiresAt: pair.AccessExpiresAt.Unix(),
		User:            &userSummary{ID: user.ID.String(), Email: user.Email, Role: user.Role},
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	plain := s.refreshTokenFromRequest(r)
	if plain == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "refresh token missing"})
		return
	}

	pair, _, err := s.service.RefreshToken(r.Context(), plain)
	if err != nil {
		// Кука с мёртвым токеном клиенту больше не нужна.
		s.clearRefreshCookie(w)
		s.writeServiceError(w, r.Context(), err)
		return
	}

	s.setRefreshCookie(w, pair.RefreshToken)
	writeJSON(w, http.StatusOK, authResponse{
		AccessToken:     pair.AccessToken,
		AccessExpiresAt: pair.AccessExpiresAt.Unix(),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	plain := s.refreshTokenFromRequest(r)

	// Куку чистим в любом случае; отзыв записи — best-effort, повторный
	// logout по уже отозванному токену не считается ошибкой клиента.
	s.clearRefreshCookie(w)

	if plain != "" {
		if err := s.service.RevokeToken(r.Context(), plain); err != nil &&
			!errors.Is(err, service.ErrInvalidToken) && !errors.Is(err, service.ErrTokenRevoked) {
			s.writeServiceError(w, r.Context(), err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	const bearerPrefix = "Bearer "

	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, bearerPrefix) {
		writeJSON(w, http.StatusOK, validateResponse{Valid: false})
		return
	}

	uid, role, err := s.service.ValidateToken(r.Context(), strings.TrimPrefix(h, bearerPrefix))
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) || errors.Is(err, service.ErrTokenExpired) || errors.Is(err, service.ErrTokenRevoked) {
			writeJSON(w, http.StatusOK, validateResponse{Valid: false})
			return
		}

		s.writeServiceError(w, r.Context(), err)
		return
	}

	writeJSON(w, http.StatusOK, validateResponse{
		Valid:  true,
		UserID: uid.String(),
		Role:   role,
	})
}

// refreshTokenFromRequest достаёт refresh-токен из куки или из тела запроса.
func (s *Server) refreshTokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(refreshCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
		return req.RefreshToken
	}

	return ""
}

func (s *Server) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/auth",
		MaxAge:   int(s.cfg.RefreshTokenTTL / time.Second),
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

// writeServiceError транслирует ошибку доменного слоя в HTTP-статус.
// Детали внутренних ошибок наружу не утекают — только в логи.
func (s *Server) writeServiceError(w http.ResponseWriter, ctx context.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrWeakPassword),
		errors.Is(err, service.ErrEmptyPassword):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})

	case errors.Is(err, service.ErrEmailTaken):
		writeJSON(w, http.StatusConflict, errorResponse{Error: service.ErrEmailTaken.Error()})

	case errors.Is(err, service.ErrReuseDetected):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: service.ErrReuseDetected.Error()})

	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrTokenExpired),
		errors.Is(err, service.ErrTokenRevoked),
		errors.Is(err, service.ErrUserNotFound):
		// Единое сообщение: случаи не различимы снаружи.
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})

	default:
		log.From(ctx).Error("internal_error", "err", err.Error())
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
