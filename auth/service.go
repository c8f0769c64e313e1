// Package auth covers both sides of authentication: operators signing in
// to the admin API with a JWT cookie, and the agent signing its browser in
// to the feed with a pooled account.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"reel-scout/models"
)

const (
	CookieName  = "auth_token"
	DefaultCost = 14
	tokenTTL    = 24 * time.Hour
	claimsKey   = "claims"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// UserStore is where operator accounts live.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
}

type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Service issues and checks operator tokens.
type Service struct {
	users  UserStore
	secret []byte
	cost   int
	now    func() time.Time
}

func NewService(users UserStore, secret string) *Service {
	return &Service{users: users, secret: []byte(secret), cost: DefaultCost, now: time.Now}
}

// WithCost overrides the bcrypt cost.
func (s *Service) WithCost(cost int) *Service {
	s.cost = cost
	return s
}

func (s *Service) HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	return string(b), err
}

// SeedAdmin creates the admin operator if it does not exist yet.
func (s *Service) SeedAdmin(ctx context.Context, username, password string) (bool, error) {
	if _, err := s.users.GetUserByUsername(ctx, username); err == nil {
		return false, nil
	} else if !errors.Is(err, models.ErrNotFound) {
		return false, err
	}
	hash, err := s.HashPassword(password)
	if err != nil {
		return false, fmt.Errorf("hash admin password: %w", err)
	}
	if err := s.users.CreateUser(ctx, &models.User{Username: username, PasswordHash: hash, Role: "admin"}); err != nil {
		return false, fmt.Errorf("create admin: %w", err)
	}
	return true, nil
}

// Login checks the password and returns the session cookie.
func (s *Service) Login(ctx context.Context, username, password string) (*http.Cookie, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	expires := s.now().Add(tokenTTL)
	claims := &Claims{
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(s.now()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Expires:  expires,
		HttpOnly: true,
		Path:     "/",
	}, nil
}

// Verify parses a token and returns its claims.
func (s *Service) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}
	if !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Middleware rejects requests without a valid cookie or bearer token.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(CookieName)
		if err != nil || token == "" {
			token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		claims, err := s.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// ClaimsFrom returns the claims Middleware stored on the request.
func ClaimsFrom(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}
