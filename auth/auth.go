package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-redis/redis/v7"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ContextKey is a defined type to be used in context.Context containing the Claims
type ContextKey string

// Context is the key used in context.Context containing the Claims
const Context ContextKey = "authContext"

// Environment is the type for defining the running environment
type Environment string

// define constants
const (
	EnvDevelopment Environment = "Dev"
	EnvProduction  Environment = "Prod"
)

const (
	bcryptCost      = 12
	accessTokenTTL  = time.Minute * 15
	refreshTokenTTL = time.Hour * 24 * 30
)

// Claims is the struct for the access token
type Claims struct {
	jwt.StandardClaims
	Email           string `json:"email"`
	Role            string `json:"role"`
	ProfileComplete bool   `json:"profileComplete"`
}

// Options provides initialization parameters for Auth
type Options struct {
	Redis  redis.UniversalClient
	Logger *zap.Logger

	JWTSigningKey string

	Environment Environment
}

func (o *Options) validate() error {
	if o == nil {
		return fmt.Errorf("nil Options is invalid")
	}
	if o.Redis == nil {
		return fmt.Errorf("nil Redis is invalid")
	}
	if o.Logger == nil {
		return fmt.Errorf("nil Logger is invalid")
	}
	if len(o.JWTSigningKey) == 0 {
		return fmt.Errorf("empty JWTSigningKey is invalid")
	}
	return nil
}

// Auth provides credential verification and token issuance. Refresh tokens
// are tracked in Redis so a logout actually revokes them.
type Auth struct {
	Options
	jwtKey []byte
}

// New returns an Auth for handling credentials and tokens
func New(option Options) (*Auth, error) {
	if err := option.validate(); err != nil {
		return nil, err
	}
	return &Auth{
		Options: option,
		jwtKey:  []byte(option.JWTSigningKey),
	}, nil
}

// HashPassword hashes a plaintext password for storage
func (a *Auth) HashPassword(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyPassword reports whether plain matches the stored hash
func (a *Auth) VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

func refreshKey(jti string) string {
	return "refresh:" + jti
}

func (a *Auth) storeRefreshToken(ctx context.Context, jti, email string) error {
	return a.Redis.Set(refreshKey(jti), email, refreshTokenTTL).Err()
}

func (a *Auth) lookupRefreshToken(jti string) (string, error) {
	email, err := a.Redis.Get(refreshKey(jti)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return email, nil
}

// RevokeRefreshToken removes a refresh token from the store, ending its
// usability immediately
func (a *Auth) RevokeRefreshToken(ctx context.Context, token string) error {
	claim, err := a.parseRefreshToken(token)
	if err != nil {
		return err
	}
	if claim == nil {
		return nil
	}
	return a.Redis.Del(refreshKey(claim.Id)).Err()
}
