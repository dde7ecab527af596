package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/HimanshuNaik19/feedback-flash-qr/internal/config"
)

const (
	issuer    = "feedback-flash-qr"
	audience  = "feedback-flash-qr-admin"
	RoleAdmin = "admin"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type JWTService struct {
	accessSecret string
	accessExpiry time.Duration
}

type AccessTokenClaims struct {
	Sub  string `json:"sub"`
	Role string `json:"role"`
	JTI  string `json:"jti"`
	jwt.RegisteredClaims
}

func NewJWTService(cfg *config.Config) *JWTService {
	return &JWTService{
		accessSecret: cfg.JWT.AccessSecret,
		accessExpiry: cfg.JWT.AccessExpiry,
	}
}

func (j *JWTService) GenerateAccessToken(username, role string) (string, error) {
	now := time.Now()
	claims := AccessTokenClaims{
		Sub:  username,
		Role: role,
		JTI:  uuid.New().String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.accessExpiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(j.accessSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

func (j *JWTService) ValidateAccessToken(tokenString string) (*AccessTokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(j.accessSecret), nil
	}, jwt.WithIssuer(issuer), jwt.WithAudience(audience))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*AccessTokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

func (j *JWTService) GetAccessExpiry() time.Duration {
	return j.accessExpiry
}

// Admin checks the single configured admin account.
type Admin struct {
	username     string
	passwordHash string
}

func NewAdmin(cfg config.AdminConfig) *Admin {
	return &Admin{username: cfg.Username, passwordHash: cfg.PasswordHash}
}

func (a *Admin) Verify(username, password string) error {
	if a.passwordHash == "" || username != a.username {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
