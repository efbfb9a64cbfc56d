package utils

import (
	"errors"
	"fmt"
	"time"

	"mediaconv/models"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

var (
	ErrInvalidManifest    = errors.New("invalid manifest format")
	ErrManifestExpired    = errors.New("manifest has expired")
	ErrManifestNotYet     = errors.New("manifest not yet valid")
	ErrInvalidSignature   = errors.New("invalid manifest signature")
	ErrInvalidIssuer      = errors.New("invalid issuer")
	ErrIncompleteManifest = errors.New("manifest is missing version or digest")
)

// VerifyConfig holds verification configuration
type VerifyConfig struct {
	SecretKey      []byte        // HS256 key; nil skips signature verification
	ExpectedIssuer string        // Optional: validate issuer
	ClockSkew      time.Duration // Optional: allow clock skew (default 0)
}

// VerifyManifest decodes a compact-serialized engine release manifest.
// With a SecretKey the HS256 signature must verify; without one the claims
// are read unverified and the binary digest check is the only integrity guard.
func VerifyManifest(token string, config VerifyConfig) (*models.EngineManifest, error) {
	if token == "" {
		return nil, ErrInvalidManifest
	}

	tok, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	claims := &models.EngineManifest{}
	if config.SecretKey != nil {
		err = tok.Claims(config.SecretKey, claims)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
	} else if err = tok.UnsafeClaimsWithoutVerification(claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	now := time.Now().Unix()
	clockSkew := int64(config.ClockSkew.Seconds())

	if claims.ExpiresAt > 0 && claims.ExpiresAt < (now-clockSkew) {
		return nil, ErrManifestExpired
	}
	if claims.IssuedAt > 0 && claims.IssuedAt > (now+clockSkew) {
		return nil, ErrManifestNotYet
	}
	if config.ExpectedIssuer != "" && claims.Issuer != config.ExpectedIssuer {
		return nil, fmt.Errorf("%w: expected '%s', got '%s'",
			ErrInvalidIssuer, config.ExpectedIssuer, claims.Issuer)
	}
	if claims.Version == "" || claims.SHA256 == "" {
		return nil, ErrIncompleteManifest
	}

	return claims, nil
}

// CreateManifest signs claims with HS256. Used by release tooling and tests.
func CreateManifest(claims *models.EngineManifest, secretKey []byte) (string, error) {
	if claims == nil {
		return "", errors.New("claims cannot be nil")
	}
	if len(secretKey) == 0 {
		return "", errors.New("secret key cannot be empty")
	}

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: secretKey}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}

	token, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to create manifest: %w", err)
	}
	return token, nil
}
