package middleware

import (
	"context"
	"fmt"
	"net/http"

	"firebase.google.com/go/v4/auth"
	"github.com/golang/glog"
	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-midea/memberhub/internal/models"
)

// TokenVerifier is satisfied by *auth.Client
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseAuthMiddleware creates an Echo middleware to verify Firebase ID tokens
func FirebaseAuthMiddleware(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			idToken, err := bearerToken(c)
			if err != nil {
				return err
			}

			token, err := verifier.VerifyIDToken(c.Request().Context(), idToken)
			if err != nil {
				glog.V(1).Infof("[auth]rejected firebase token = %s\n", err)
				return echo.NewHTTPError(http.StatusUnauthorized, fmt.Sprintf("Invalid or expired ID token: %v", err))
			}

			name, _ := token.Claims["name"].(string)
			if name == "" {
				name = token.UID
			}
			c.Set(IdentityKey, models.Identity{ID: token.UID, Name: name})
			return next(c)
		}
	}
}
