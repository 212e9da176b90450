package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"

	"github.com/Razee4315/panda-chat/internal/logger"
)

// UIDKey is the echo context key holding the authenticated user id.
const UIDKey = "uid"

// TokenVerifier verifies Firebase ID tokens. *auth.Client satisfies it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// bearerToken reads the token from the Authorization header. EventSource
// clients cannot set headers, so the access_token query parameter is
// accepted as well.
func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		if token := c.QueryParam("access_token"); token != "" {
			return token, nil
		}
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Authorization header is missing")
	}
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Authorization header must be in Bearer format")
	}
	return token, nil
}

// authenticated stores the uid and a uid-scoped logger on the request.
func authenticated(c echo.Context, uid string) {
	c.Set(UIDKey, uid)
	req := c.Request()
	log := logger.FromContext(req.Context()).With(slog.String("uid", uid))
	c.SetRequest(req.WithContext(logger.WithLogger(req.Context(), log)))
}

// FirebaseAuthMiddleware verifies Firebase ID tokens and exposes the token's
// uid under UIDKey.
func FirebaseAuthMiddleware(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			idToken, err := bearerToken(c)
			if err != nil {
				return err
			}
			token, err := verifier.VerifyIDToken(c.Request().Context(), idToken)
			if err != nil {
				logger.FromContext(c.Request().Context()).Debug("id token rejected", slog.String("error", err.Error()))
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired ID token")
			}
			authenticated(c, token.UID)
			return next(c)
		}
	}
}
