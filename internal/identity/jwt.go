package identity

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/joao-fontenele/storefront/internal/domain"
)

type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// JWTGate validates HS256 access tokens issued by the storefront backend.
type JWTGate struct {
	secretKey []byte
	expiry    time.Duration
}

func NewJWTGate(secretKey string, expiry time.Duration) *JWTGate {
	return &JWTGate{
		secretKey: []byte(secretKey),
		expiry:    expiry,
	}
}

func (g *JWTGate) IssueToken(user User) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(g.expiry)

	claims := Claims{
		UserID: user.ID,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   user.ID,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}

	return token, expiresAt, nil
}

func (g *JWTGate) Authenticate(r *http.Request) (User, error) {
	tokenString := ExtractToken(r)
	if tokenString == "" {
		return User{}, fmt.Errorf("%w: missing token", domain.ErrUnauthorized)
	}

	claims, err := g.validate(tokenString)
	if err != nil {
		return User{}, err
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return User{}, fmt.Errorf("%w: token has no subject", domain.ErrUnauthorized)
	}

	return User{ID: userID, Email: claims.Email}, nil
}

func (g *JWTGate) validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return g.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", domain.ErrUnauthorized)
		}
		return nil, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}

	return claims, nil
}
