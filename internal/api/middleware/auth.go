// auth.go — JWT middleware для аутентификации запросов.
// Два режима проверки подписи:
//   - static: HS256 с локальным секретом (токены выдаёт /api/auth/login)
//   - jwks: RS256 с ключами внешнего IdP (PC_JWKS_URL)
//
// В обоих режимах проверяются exp, iss и aud; sub кладётся в контекст.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/maurocosentino/personalcloud/internal/api/errors"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// ContextKeySubject — ключ для sub из JWT в контексте запроса.
const ContextKeySubject contextKey = "jwt_subject"

// Verifier — проверка Bearer-токенов входящих запросов.
type Verifier struct {
	keyfunc jwt.Keyfunc
	// methods — допустимые алгоритмы подписи
	methods  []string
	issuer   string
	audience string
	leeway   time.Duration
	logger   *slog.Logger
}

// NewStaticVerifier создаёт Verifier для HS256 с локальным секретом.
// Токены с таким секретом выдаёт собственный login endpoint.
func NewStaticVerifier(secret []byte, issuer, audience string, leeway time.Duration, logger *slog.Logger) *Verifier {
	return &Verifier{
		keyfunc: func(*jwt.Token) (any, error) {
			return secret, nil
		},
		methods:  []string{"HS256"},
		issuer:   issuer,
		audience: audience,
		leeway:   leeway,
		logger:   logger.With(slog.String("component", "jwt_auth"), slog.String("mode", "static")),
	}
}

// NewJWKSVerifier создаёт Verifier с ключами из JWKS endpoint внешнего
// IdP. NoErrorReturnFirstHTTPReq позволяет стартовать, даже если
// endpoint ещё недоступен (одновременный запуск pod-ов).
func NewJWKSVerifier(jwksURL, issuer, audience string, refreshInterval, leeway time.Duration, logger *slog.Logger) (*Verifier, error) {
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           refreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	kf, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return &Verifier{
		keyfunc:  kf.Keyfunc,
		methods:  []string{"RS256"},
		issuer:   issuer,
		audience: audience,
		leeway:   leeway,
		logger:   logger.With(slog.String("component", "jwt_auth"), slog.String("mode", "jwks")),
	}, nil
}

// Middleware возвращает HTTP middleware аутентификации: извлекает
// Bearer token, валидирует подпись, exp, iss и aud, помещает sub
// в контекст запроса.
func (v *Verifier) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Falta la cabecera Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				apierrors.Unauthorized(w, "Formato de Authorization inválido: se espera Bearer <token>")
				return
			}

			tokenString := parts[1]
			if tokenString == "" {
				apierrors.Unauthorized(w, "Token Bearer vacío")
				return
			}

			claims := &jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, v.keyfunc,
				jwt.WithValidMethods(v.methods),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(v.leeway),
				jwt.WithIssuer(v.issuer),
				jwt.WithAudience(v.audience),
			)
			if err != nil {
				v.logger.Debug("JWT валидация не пройдена",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Token inválido o expirado")
				return
			}

			if !token.Valid {
				apierrors.Unauthorized(w, "Token inválido")
				return
			}

			subject, err := claims.GetSubject()
			if err != nil || subject == "" {
				apierrors.Unauthorized(w, "Falta sub en el token")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeySubject, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SubjectFromContext извлекает sub из контекста запроса.
// Возвращает пустую строку, если sub не найден.
func SubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(ContextKeySubject).(string)
	return subject
}
