// auth.go — обработчик POST /api/auth/login.
// Выдаёт HS256 JWT при совпадении учётных данных администратора.
package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/maurocosentino/personalcloud/internal/api/errors"
	"github.com/maurocosentino/personalcloud/internal/config"
)

// AuthHandler — обработчик endpoint аутентификации.
type AuthHandler struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewAuthHandler создаёт обработчик аутентификации.
func NewAuthHandler(cfg *config.Config, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		cfg:    cfg,
		logger: logger,
	}
}

// loginRequest — тело запроса POST /api/auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse — ответ с выданным токеном.
type loginResponse struct {
	Token string `json:"token"`
}

// Login обрабатывает POST /api/auth/login.
// Сравнение учётных данных — constant-time, чтобы не раскрывать
// длину и префикс пароля через тайминг.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.cfg.JWKSURL != "" {
		// В jwks режиме токены выдаёт внешний IdP
		errors.Unauthorized(w, "La emisión de tokens está delegada a un proveedor externo.")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.InvalidParameters(w, "Cuerpo de la petición inválido.")
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.cfg.AdminUser)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.cfg.AdminPassword)) == 1
	if !userOK || !passOK {
		h.logger.Warn("неудачная попытка входа",
			slog.String("username", req.Username),
			slog.String("remote_addr", r.RemoteAddr))
		errors.Unauthorized(w, "Credenciales inválidas.")
		return
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   req.Username,
		Issuer:    h.cfg.JWTIssuer,
		Audience:  jwt.ClaimStrings{h.cfg.JWTAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(h.cfg.TokenTTL)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(h.cfg.JWTSecret))
	if err != nil {
		h.logger.Error("ошибка подписи токена", slog.String("error", err.Error()))
		errors.InternalError(w, "No se pudo emitir el token.")
		return
	}

	h.logger.Info("выдан токен",
		slog.String("subject", req.Username),
		slog.Duration("ttl", h.cfg.TokenTTL))

	writeJSON(w, http.StatusOK, loginResponse{Token: signed})
}
