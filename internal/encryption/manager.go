package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"dauth-service/internal/config"
	"dauth-service/internal/util"
)

var (
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// envelope is the stored form of an encrypted field: the AES-GCM ciphertext
// plus the data key that unlocks it, itself wrapped by KMS (or, with KMS
// disabled, merely encoded).
type envelope struct {
	Value   string `json:"value"`
	DEK     string `json:"dek"`
	Version string `json:"version"`
}

// Manager performs envelope encryption of email addresses at rest and
// produces the deterministic hash used as the lookup key. With KMS disabled
// data keys are generated locally, which is only acceptable in development.
type Manager struct {
	kmsClient *kms.Client
	config    *config.Config
	dekCache  sync.Map
}

type dataKey struct {
	Plaintext  []byte
	Ciphertext []byte
	KeyID      string
}

func NewManager(cfg *config.Config, kmsClient *kms.Client) *Manager {
	return &Manager{
		kmsClient: kmsClient,
		config:    cfg,
	}
}

// HashEmail derives the deterministic lookup key for a normalized email.
// HMAC keyed on the JWT secret keeps the hash space unlinkable to public
// rainbow tables while staying stable across restarts.
func (m *Manager) HashEmail(normalizedEmail string) string {
	mac := hmac.New(sha256.New, []byte(m.config.JWT.Secret))
	mac.Write([]byte(normalizedEmail))
	return hex.EncodeToString(mac.Sum(nil))
}

// EncryptEmail seals the plaintext address and returns the stored blob plus
// the id of the wrapping key.
func (m *Manager) EncryptEmail(ctx context.Context, email string) ([]byte, string, error) {
	dk, err := m.generateDataKey(ctx)
	if err != nil {
		return nil, "", err
	}

	block, err := aes.NewCipher(dk.Plaintext)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	ciphertext := gcm.Seal(nonce, nonce, []byte(email), nil)

	env := envelope{
		Value:   base64.StdEncoding.EncodeToString(ciphertext),
		DEK:     base64.StdEncoding.EncodeToString(dk.Ciphertext),
		Version: "v1",
	}
	blob, err := json.Marshal(env)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	m.dekCache.Store(env.DEK, dk.Plaintext)
	return blob, dk.KeyID, nil
}

// DecryptEmail opens a blob produced by EncryptEmail.
func (m *Manager) DecryptEmail(ctx context.Context, blob []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return "", fmt.Errorf("%w: malformed envelope", ErrDecryptionFailed)
	}

	if cached, ok := m.dekCache.Load(env.DEK); ok {
		return m.openWithKey(env.Value, cached.([]byte))
	}

	var plaintextDEK []byte
	if m.config.KMS.Enabled {
		wrapped, err := base64.StdEncoding.DecodeString(env.DEK)
		if err != nil {
			return "", fmt.Errorf("%w: invalid DEK encoding", ErrDecryptionFailed)
		}
		out, err := m.kmsClient.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: wrapped})
		if err != nil {
			return "", fmt.Errorf("%w: failed to unwrap DEK: %v", ErrDecryptionFailed, err)
		}
		plaintextDEK = out.Plaintext
	} else {
		var err error
		plaintextDEK, err = base64.StdEncoding.DecodeString(env.DEK)
		if err != nil {
			return "", fmt.Errorf("%w: invalid local DEK", ErrDecryptionFailed)
		}
	}

	m.dekCache.Store(env.DEK, plaintextDEK)
	return m.openWithKey(env.Value, plaintextDEK)
}

func (m *Manager) generateDataKey(ctx context.Context) (*dataKey, error) {
	if !m.config.KMS.Enabled {
		return m.generateLocalKey()
	}

	out, err := m.kmsClient.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(m.config.KMS.KeyID),
		KeySpec: types.DataKeySpecAes256,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate data key: %w", err)
	}

	return &dataKey{
		Plaintext:  out.Plaintext,
		Ciphertext: out.CiphertextBlob,
		KeyID:      m.config.KMS.KeyID,
	}, nil
}

func (m *Manager) generateLocalKey() (*dataKey, error) {
	key := make([]byte, 32) // AES-256
	if _, err := rand.Read(key); err != nil {
		util.Error("Failed to generate local encryption key", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	// Without KMS the "wrapped" key is the raw key; the envelope's base64
	// of Ciphertext is the only encoding, so decrypt decodes exactly once.
	return &dataKey{
		Plaintext:  key,
		Ciphertext: key,
		KeyID:      uuid.New().String(),
	}, nil
}

func (m *Manager) openWithKey(encodedValue string, key []byte) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encodedValue)
	if err != nil {
		return "", fmt.Errorf("%w: invalid ciphertext encoding", ErrDecryptionFailed)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return string(plaintext), nil
}

// ClearCache drops every cached data key.
func (m *Manager) ClearCache() {
	m.dekCache.Range(func(key, _ interface{}) bool {
		m.dekCache.Delete(key)
		return true
	})
}
