// Package auth issues and checks the bearer tokens of the control API.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned by Login for a wrong username or password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Service handles authentication for the single admin account
type Service struct {
	jwtSecret     []byte
	tokenExpiry   time.Duration
	adminUsername string
	adminHash     []byte
}

// Claims represents JWT token claims
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// LoginRequest represents the login payload
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewService creates a new authentication service. adminPasswordHash is a
// bcrypt hash as produced by HashPassword.
func NewService(jwtSecret, adminUsername, adminPasswordHash string, tokenExpiry time.Duration) (*Service, error) {
	if len(jwtSecret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 characters")
	}
	if _, err := bcrypt.Cost([]byte(adminPasswordHash)); err != nil {
		return nil, fmt.Errorf("admin password hash: %w", err)
	}
	if tokenExpiry <= 0 {
		tokenExpiry = 24 * time.Hour
	}

	return &Service{
		jwtSecret:     []byte(jwtSecret),
		tokenExpiry:   tokenExpiry,
		adminUsername: adminUsername,
		adminHash:     []byte(adminPasswordHash),
	}, nil
}

// HashPassword returns the bcrypt hash stored in auth.admin_password_hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Login authenticates a user and returns a JWT token
func (s *Service) Login(username, password string) (*LoginResponse, error) {
	if username != s.adminUsername {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.adminHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	expiresAt := time.Now().Add(s.tokenExpiry)
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "lightshow",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &LoginResponse{
		Token:     tokenString,
		ExpiresAt: expiresAt,
	}, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer("lightshow"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}
