// Package service holds the operator-facing services: admin authentication
// and ticket management for human takeover.
package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	"github.com/boddenberg/support-assistant-bfa-go/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var authTracer = otel.Tracer("service/auth")

const (
	maxFailedAttempts = 5
	lockDuration      = 15 * time.Minute
	bcryptCost        = 12
	tokenIssuer       = "support-bfa"
)

// AdminAuth authenticates the single operator account configured through
// ADMIN_USERNAME / ADMIN_PASSWORD_HASH and issues HS256 access tokens.
type AdminAuth struct {
	username     string
	passwordHash []byte
	jwtSecret    []byte
	accessTTL    time.Duration
	logger       *zap.Logger

	mu          sync.Mutex
	failed      int
	lockedUntil time.Time
	now         func() time.Time
}

// NewAdminAuth creates the service. An empty passwordHash disables login.
func NewAdminAuth(username, passwordHash, jwtSecret string, accessTTL time.Duration, logger *zap.Logger) *AdminAuth {
	return &AdminAuth{
		username:     username,
		passwordHash: []byte(passwordHash),
		jwtSecret:    []byte(jwtSecret),
		accessTTL:    accessTTL,
		logger:       logger,
		now:          time.Now,
	}
}

// HashPassword returns the bcrypt hash to put in ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", &domain.ErrValidation{Field: "password", Message: "password is required"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// ============================================================
// Login: POST /v1/admin/login
// ============================================================

func (a *AdminAuth) Login(ctx context.Context, req *domain.AdminLoginRequest) (*domain.AdminLoginResponse, error) {
	_, span := authTracer.Start(ctx, "AdminAuth.Login")
	defer span.End()
	span.SetAttributes(attribute.String("admin.username", req.Username))

	if req.Username == "" || req.Password == "" {
		return nil, &domain.ErrValidation{Field: "username", Message: "username and password are required"}
	}
	if len(a.passwordHash) == 0 {
		a.logger.Warn("admin login attempted but ADMIN_PASSWORD_HASH is not set")
		return nil, &domain.ErrUnauthorized{Message: "invalid credentials"}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if now := a.now(); now.Before(a.lockedUntil) {
		remaining := a.lockedUntil.Sub(now).Round(time.Minute)
		a.logger.Warn("admin login: locked", zap.Duration("remaining", remaining))
		return nil, &domain.ErrUnauthorized{Message: fmt.Sprintf("too many failed attempts, try again in %s", remaining)}
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(a.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(req.Password))
	if !userOK || passErr != nil {
		a.failed++
		if a.failed >= maxFailedAttempts {
			a.lockedUntil = a.now().Add(lockDuration)
			a.failed = 0
			a.logger.Warn("admin login: locked after max attempts",
				zap.Int("max", maxFailedAttempts),
				zap.Duration("lock_duration", lockDuration),
			)
		} else {
			a.logger.Warn("admin login: failed attempt", zap.Int("attempts", a.failed))
		}
		return nil, &domain.ErrUnauthorized{Message: "invalid credentials"}
	}
	a.failed = 0

	token, err := a.IssueToken(a.username)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	a.logger.Info("admin login", zap.String("username", a.username))

	return &domain.AdminLoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(a.accessTTL.Seconds()),
	}, nil
}

// ============================================================
// Tokens
// ============================================================

// AdminClaims are the claims carried by admin access tokens.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs an access token for subject.
func (a *AdminAuth) IssueToken(subject string) (string, error) {
	now := a.now()
	claims := AdminClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.accessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.jwtSecret)
}

// ValidateAccessToken parses and verifies an admin token.
func (a *AdminAuth) ValidateAccessToken(tokenString string) (*AdminClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.jwtSecret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	if claims.Role != "admin" {
		return nil, &domain.ErrForbidden{Action: "admin access"}
	}
	return claims, nil
}
