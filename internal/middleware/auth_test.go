package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/go-playground/assert/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-midea/memberhub/internal/models"
)

func sign(t *testing.T, secret string, claims models.JwtCustomClaims) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func serve(mw echo.MiddlewareFunc, req *http.Request) (*httptest.ResponseRecorder, models.Identity) {
	e := echo.New()
	var seen models.Identity
	e.GET("/me", func(c echo.Context) error {
		seen, _ = CurrentIdentity(c)
		return c.NoContent(http.StatusOK)
	}, mw)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec, seen
}

func TestJWTAuthMiddleware(t *testing.T) {
	mw := JWTAuthMiddleware("s3")
	claims := models.JwtCustomClaims{
		UserID: "u1",
		Name:   "Ann",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := sign(t, "s3", claims)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec, id := serve(mw, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.Identity{ID: "u1", Name: "Ann"}, id)

	// websocket clients pass the token in the query
	rec, id = serve(mw, httptest.NewRequest(http.MethodGet, "/me?token="+token, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", id.ID)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+sign(t, "other", claims))
	rec, _ = serve(mw, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Token "+token)
	rec, _ = serve(mw, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = serve(mw, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired := claims
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+sign(t, "s3", expired))
	rec, _ = serve(mw, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type fakeVerifier map[string]*auth.Token

func (f fakeVerifier) VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error) {
	if tok, ok := f[idToken]; ok {
		return tok, nil
	}
	return nil, errors.New("token rejected")
}

func TestFirebaseAuthMiddleware(t *testing.T) {
	mw := FirebaseAuthMiddleware(fakeVerifier{
		"good":    {UID: "fb1", Claims: map[string]interface{}{"name": "Bea"}},
		"no-name": {UID: "fb2", Claims: map[string]interface{}{}},
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec, id := serve(mw, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.Identity{ID: "fb1", Name: "Bea"}, id)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer no-name")
	_, id = serve(mw, req)
	assert.Equal(t, "fb2", id.Name)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer bad")
	rec, _ = serve(mw, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
