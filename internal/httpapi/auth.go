package httpapi

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"smartseller/backend/internal/domain"
)

const vendorSubject = "vendor"

// AuthManager guards the API with a single vendor password. A successful
// login yields an HS256 bearer token.
type AuthManager struct {
	secret       []byte
	tokenTTL     time.Duration
	passwordHash string
	disabled     bool
	now          func() time.Time
}

func NewAuthManager(secret string, tokenTTL time.Duration, vendorPassword string, disabled bool) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}

	passwordHash := ""
	vendorPassword = strings.TrimSpace(vendorPassword)
	switch {
	case isPasswordHash(vendorPassword):
		passwordHash = vendorPassword
	case vendorPassword != "":
		if hashed, err := hashPassword(vendorPassword); err == nil {
			passwordHash = hashed
		}
	}

	return &AuthManager{
		secret:       []byte(secret),
		tokenTTL:     tokenTTL,
		passwordHash: passwordHash,
		disabled:     disabled,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Disabled reports whether every request is let through as the vendor.
func (a *AuthManager) Disabled() bool {
	return a.disabled
}

func (a *AuthManager) Login(req domain.LoginRequest) (domain.LoginResponse, error) {
	if !verifyPassword(a.passwordHash, req.Password) {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}

	expiresAt := a.now().Add(a.tokenTTL)
	token, err := a.sign(vendorSubject, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &jwtlib.RegisteredClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer("smartseller"))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{Subject: sub}, nil
}

func (a *AuthManager) sign(subject string, expiresAt time.Time) (string, error) {
	claims := jwtlib.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwtlib.NewNumericDate(a.now()),
		ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		Issuer:    "smartseller",
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
