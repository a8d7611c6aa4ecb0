package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt"
	"golang.org/x/crypto/bcrypt"

	"github.com/sparkmatch/sparkd/internal/types"
)

const (
	tokenCookieKey = "token"

	defaultJwtExpiration = time.Hour * 24
	// verification links stay valid long enough to survive a slow inbox
	verifyTokenExpiration = time.Hour * 48

	userIdClaim = "user-id"
	scopeClaim  = "scope"
	expClaim    = "exp"

	scopeSession = "session"
	scopeVerify  = "verify"
)

type contextKey string

const userIdKey contextKey = "user-id"

func WithUserId(ctx context.Context, userId int) context.Context {
	return context.WithValue(ctx, userIdKey, userId)
}

func UserId(ctx context.Context) (int, bool) {
	userId, ok := ctx.Value(userIdKey).(int)

	return userId, ok
}

func hashPassword(passwd string) (string, error) {
	passwdHash, err := bcrypt.GenerateFromPassword([]byte(passwd), bcrypt.DefaultCost)
	return string(passwdHash), err
}

func verifyPassword(passwdHash, passwd string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(passwdHash), []byte(passwd))
	return err == nil
}

func (s *SparkApp) createJwtForSession(user types.User, exp time.Duration) (string, error) {
	return s.createJwt(user.Id, scopeSession, exp)
}

// createVerificationJwt mints the single-purpose token embedded in the email
// verification link. It is scoped so a session cookie can never double as a
// verification proof.
func (s *SparkApp) createVerificationJwt(userId int) (string, error) {
	return s.createJwt(userId, scopeVerify, verifyTokenExpiration)
}

func (s *SparkApp) createJwt(userId int, scope string, exp time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim: userId,
		scopeClaim:  scope,
		expClaim:    time.Now().Add(exp).Unix(),
	})

	return token.SignedString(s.signingKey)
}

func (s *SparkApp) extractUserIdFromToken(tokenString, scope string) (int, error) {
	token, err := s.verifyToken(tokenString)
	if err != nil {
		return 0, fmt.Errorf("verify token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, fmt.Errorf("invalid token claims")
	}

	if tokenScope, _ := claims[scopeClaim].(string); tokenScope != scope {
		return 0, fmt.Errorf("wrong token scope %q", tokenScope)
	}

	userId, ok := claims[userIdClaim].(float64)
	if !ok {
		return 0, fmt.Errorf("invalid user id claim")
	}

	return int(userId), nil
}

func (s *SparkApp) verifyToken(tokenString string) (*jwt.Token, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return token, nil
}

func createJwtCookie(tokenString string, exp time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     tokenCookieKey,
		Value:    tokenString,
		Path:     "/",
		Expires:  time.Now().Add(exp),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}
