package security

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-social-sync/core"
	"golang.org/x/crypto/pbkdf2"
)

const (
	MinKDFIterations = 100_000
	keyLength        = 32
	nonceLength      = 12
	gcmTagLength     = 16

	defaultKDFSalt        = "socialsync.tenant-credentials.v1"
	derivedKeyCachePrefix = "socialsync::derived_key::v1"
	defaultKeyCacheTTL    = 15 * time.Minute
)

type Option func(*TenantCipher)

// WithIterations raises the PBKDF2 iteration count. Values below
// MinKDFIterations are ignored.
func WithIterations(iterations int) Option {
	return func(c *TenantCipher) {
		if iterations >= MinKDFIterations {
			c.iterations = iterations
		}
	}
}

func WithSalt(salt string) Option {
	return func(c *TenantCipher) {
		if trimmed := strings.TrimSpace(salt); trimmed != "" {
			c.salt = []byte(trimmed)
		}
	}
}

func WithKeyCache(cache repositorycache.CacheService) Option {
	return func(c *TenantCipher) {
		if cache != nil {
			c.cache = cache
		}
	}
}

// TenantCipher encrypts credential fields with AES-256-GCM under a key derived
// from the tenant id and the deployment master secret. Ciphertexts are
// base64(nonce || ciphertext || tag).
type TenantCipher struct {
	masterSecret []byte
	salt         []byte
	iterations   int
	cache        repositorycache.CacheService
	random       io.Reader
}

func NewTenantCipher(masterSecret string, opts ...Option) (*TenantCipher, error) {
	secret := strings.TrimSpace(masterSecret)
	if secret == "" {
		return nil, core.NewConfigurationError("credential master secret is not configured")
	}
	c := &TenantCipher{
		masterSecret: []byte(secret),
		salt:         []byte(defaultKDFSalt),
		iterations:   MinKDFIterations,
		random:       rand.Reader,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	if c.cache == nil {
		config := repositorycache.DefaultConfig()
		config.TTL = defaultKeyCacheTTL
		cache, err := repositorycache.NewCacheService(config)
		if err != nil {
			return nil, core.NewConfigurationError(fmt.Sprintf("derived key cache: %v", err))
		}
		c.cache = cache
	}
	return c, nil
}

// DeriveKey returns the tenant's 32-byte key. Results are cached because the
// derivation is deliberately slow.
func (c *TenantCipher) DeriveKey(ctx context.Context, tenantID string) ([]byte, error) {
	if c == nil {
		return nil, core.NewConfigurationError("tenant cipher is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, core.NewFieldValidationError("tenant_id", "tenant id is required")
	}
	key, err := repositorycache.GetOrFetch(ctx, c.cache, derivedKeyCacheKey(tenantID), func(context.Context) ([]byte, error) {
		return c.deriveKey(tenantID), nil
	})
	if err != nil {
		return c.deriveKey(tenantID), nil
	}
	return key, nil
}

func (c *TenantCipher) deriveKey(tenantID string) []byte {
	password := make([]byte, 0, len(tenantID)+len(c.masterSecret))
	password = append(password, tenantID...)
	password = append(password, c.masterSecret...)
	return pbkdf2.Key(password, c.salt, c.iterations, keyLength, sha256.New)
}

func derivedKeyCacheKey(tenantID string) string {
	return derivedKeyCachePrefix + "::" + url.PathEscape(tenantID)
}

func (c *TenantCipher) Encrypt(ctx context.Context, tenantID string, plaintext string) (string, error) {
	key, err := c.DeriveKey(ctx, tenantID)
	if err != nil {
		return "", err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", core.NewInternalError(err, "create cipher")
	}
	nonce := make([]byte, nonceLength)
	if _, err := io.ReadFull(c.random, nonce); err != nil {
		return "", core.NewInternalError(err, "nonce generation failed")
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt fails with a decryption error for any malformed or tampered input and
// never returns partial plaintext.
func (c *TenantCipher) Decrypt(ctx context.Context, tenantID string, blob string) (string, error) {
	key, err := c.DeriveKey(ctx, tenantID)
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(blob))
	if err != nil || len(raw) < nonceLength+gcmTagLength {
		return "", core.NewDecryptionError(tenantID)
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", core.NewDecryptionError(tenantID)
	}
	plaintext, err := gcm.Open(nil, raw[:nonceLength], raw[nonceLength:], nil)
	if err != nil {
		return "", core.NewDecryptionError(tenantID)
	}
	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	return cipher.NewGCMWithNonceSize(block, nonceLength)
}

var _ core.Cipher = (*TenantCipher)(nil)
