// Package identity verifies the ed25519-signed tokens the external identity
// service issues to class members. The engine never manages credentials; it
// only extracts the player descriptor carried by a valid token.
package identity

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Descriptor is the identity information supplied to JoinSession.
type Descriptor struct {
	UserID      uuid.UUID
	DisplayName string
}

var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
)

// Init generates a fresh ed25519 key pair at runtime. Suitable for
// development and tests, where this process also mints the tokens.
func Init() error {
	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("generate ed25519 key pair: %w", err)
	}
	return nil
}

// InitFromPath loads the identity service's public key from file; the
// private key stays with the identity service in production.
func InitFromPath(publicPath string) error {
	data, err := os.ReadFile(publicPath)
	if err != nil {
		return fmt.Errorf("read public key file: %w", err)
	}
	publicKey = ed25519.PublicKey(data)
	return nil
}

// MintToken signs a development token carrying a player descriptor. Fails
// unless Init generated a local private key.
func MintToken(d Descriptor, ttl time.Duration) (string, error) {
	if privateKey == nil {
		return "", fmt.Errorf("no local signing key; tokens come from the identity service")
	}
	claims := jwt.MapClaims{
		"sub":  d.UserID.String(),
		"name": d.DisplayName,
	}
	if ttl > 0 {
		claims["exp"] = time.Now().Add(ttl).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// VerifyToken checks the signature and returns the player descriptor.
func VerifyToken(tokenString string) (*Descriptor, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid jwt claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return nil, fmt.Errorf("missing sub in jwt")
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, fmt.Errorf("sub is not a uuid: %w", err)
	}
	name, _ := claims["name"].(string)
	if name == "" {
		name = "Player " + sub[:4]
	}
	return &Descriptor{UserID: userID, DisplayName: name}, nil
}
