package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"

	"github.com/alimertcetin/xiv.filo.inventorysystem/internal/config"
	"github.com/alimertcetin/xiv.filo.inventorysystem/pkg/models"
)

var (
	ErrInvalidIssuer    = errors.New("invalid issuer")
	ErrNotActivated     = errors.New("user not activated")
	ErrBanned           = errors.New("user is banned")
	ErrTokenBlacklisted = errors.New("token is blacklisted")
)

// JWTValidator handles JWT token validation
type JWTValidator struct {
	config     *config.Config
	publicKey  *ecdsa.PublicKey
	keyMu      sync.RWMutex
	redis      *redis.Client
	httpClient *http.Client
	ctx        context.Context
}

// Claims represents JWT token claims issued by the login server
type Claims struct {
	UserID      int64  `json:"user_id"`
	Email       string `json:"email"`
	Username    string `json:"username"`
	AuthMethod  string `json:"auth_method"`
	Permissions int64  `json:"permissions"`
	Activated   int64  `json:"activated"`
	jwt.RegisteredClaims
}

// NewJWTValidator creates a validator and keeps its public key fresh until
// ctx is cancelled.
func NewJWTValidator(ctx context.Context, cfg *config.Config, redisClient *redis.Client) (*JWTValidator, error) {
	validator := &JWTValidator{
		config:     cfg,
		redis:      redisClient,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		ctx:        ctx,
	}

	// Fetch public key from the login server
	if err := validator.RefreshPublicKey(); err != nil {
		return nil, fmt.Errorf("failed to fetch public key: %w", err)
	}

	// Start background key refresh
	go validator.periodicKeyRefresh()

	log.Println("JWT validator initialized")
	return validator, nil
}

// RefreshPublicKey fetches the PEM encoded ECDSA public key
func (v *JWTValidator) RefreshPublicKey() error {
	log.Printf("Fetching public key from %s", v.config.JWT.PublicKeyURL)

	req, err := http.NewRequestWithContext(v.ctx, http.MethodGet, v.config.JWT.PublicKeyURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build key request: %w", err)
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch public key: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("public key endpoint returned status %d", resp.StatusCode)
	}

	keyData, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read public key: %w", err)
	}

	key, err := parsePublicKey(keyData)
	if err != nil {
		return err
	}

	// Store public key
	v.keyMu.Lock()
	v.publicKey = key
	v.keyMu.Unlock()

	log.Println("Public key refreshed successfully")
	return nil
}

func parsePublicKey(data []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}
	pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	ecdsaKey, ok := pubKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not ECDSA")
	}
	return ecdsaKey, nil
}

// periodicKeyRefresh refreshes the public key until the context ends
func (v *JWTValidator) periodicKeyRefresh() {
	refreshInterval := time.Duration(v.config.JWT.PublicKeyRefreshHrs) * time.Hour

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-v.ctx.Done():
			return
		case <-ticker.C:
			if err := v.RefreshPublicKey(); err != nil {
				log.Printf("Failed to refresh public key: %v", err)
			}
		}
	}
}

// ValidateToken validates a JWT token and returns player information
func (v *JWTValidator) ValidateToken(tokenString string) (*models.Player, error) {
	// Parse token
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		v.keyMu.RLock()
		defer v.keyMu.RUnlock()
		return v.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	// Extract claims
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	// Validate issuer
	if claims.Issuer != v.config.JWT.Issuer {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrInvalidIssuer, v.config.JWT.Issuer, claims.Issuer)
	}

	// Validate activation status
	switch {
	case claims.Activated == 0:
		return nil, ErrNotActivated
	case claims.Activated == -1:
		return nil, ErrBanned
	}

	// Check Redis blacklist
	userIDStr := strconv.FormatInt(claims.UserID, 10)
	blacklistKey := v.config.Redis.BlacklistPrefix + userIDStr

	isBlacklisted, err := v.redis.Exists(v.ctx, blacklistKey).Result()
	if err != nil {
		// don't fail authentication if Redis is down
		log.Printf("Warning: Failed to check blacklist: %v", err)
	} else if isBlacklisted > 0 {
		return nil, ErrTokenBlacklisted
	}

	// Create player model from claims
	return &models.Player{
		ID:          userIDStr,
		Username:    claims.Username,
		Email:       claims.Email,
		Permissions: claims.Permissions,
		Activated:   claims.Activated,
		AuthMethod:  claims.AuthMethod,
	}, nil
}

// extractTokenFromHeader extracts the JWT from the upgrade request
func extractTokenFromHeader(r *http.Request) string {
	// Sec-WebSocket-Protocol: "access_token, <token>"
	if protocols := r.Header.Get("Sec-WebSocket-Protocol"); protocols != "" {
		parts := strings.Split(protocols, ",")
		if len(parts) == 2 && strings.TrimSpace(parts[0]) == "access_token" {
			return strings.TrimSpace(parts[1])
		}
	}

	// Try Authorization header
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && token != "" {
		return token
	}

	// query parameter (less secure, but supported)
	return r.URL.Query().Get("token")
}
