package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/crypto/bcrypt"
)

const (
	BackupCodeCount  = 8
	backupCodeLength = 8
	backupCodeCost   = 10
	// A-Z 2-9 without 0/O/1/I/L
	backupCodeCharset = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
)

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// TOTPManager handles authenticator-app secrets: generation, encryption at
// rest, QR provisioning and code validation
type TOTPManager struct {
	encryptionKey []byte // AES-256
	issuer        string
	now           func() time.Time
}

// TOTPEnrollment is what a caller needs to finish authenticator setup
type TOTPEnrollment struct {
	EncryptedSecret []byte
	Nonce           []byte
	Secret          string
	QRCodeDataURL   string
}

// NewTOTPManager creates a new TOTP manager. encryptionKey must be 32 bytes.
func NewTOTPManager(encryptionKey []byte, issuer string) (*TOTPManager, error) {
	if len(encryptionKey) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(encryptionKey))
	}

	return &TOTPManager{
		encryptionKey: encryptionKey,
		issuer:        issuer,
		now:           time.Now,
	}, nil
}

// Enroll generates a secret for accountName, encrypts it and renders the
// provisioning URL as a PNG data URL
func (tm *TOTPManager) Enroll(accountName string) (*TOTPEnrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountName,
		SecretSize:  32,
		Period:      totpOpts.Period,
		Algorithm:   totpOpts.Algorithm,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	encrypted, nonce, err := tm.EncryptSecret([]byte(key.Secret()))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt secret: %w", err)
	}

	qr, err := qrcode.New(key.URL(), qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to create QR code: %w", err)
	}
	png, err := qr.PNG(200)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}

	return &TOTPEnrollment{
		EncryptedSecret: encrypted,
		Nonce:           nonce,
		Secret:          key.Secret(),
		QRCodeDataURL:   "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	}, nil
}

// EncryptSecret encrypts a TOTP secret using AES-256-GCM
func (tm *TOTPManager) EncryptSecret(secret []byte) ([]byte, []byte, error) {
	gcm, err := tm.gcm()
	if err != nil {
		return nil, nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nil, nonce, secret, nil), nonce, nil
}

// DecryptSecret decrypts an encrypted TOTP secret
func (tm *TOTPManager) DecryptSecret(encrypted, nonce []byte) ([]byte, error) {
	gcm, err := tm.gcm()
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, encrypted, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt secret: %w", err)
	}
	return plaintext, nil
}

// Validate checks code against the encrypted secret, allowing one step of drift
func (tm *TOTPManager) Validate(encrypted, nonce []byte, code string) (bool, error) {
	secret, err := tm.DecryptSecret(encrypted, nonce)
	if err != nil {
		return false, err
	}

	valid, err := totp.ValidateCustom(code, string(secret), tm.now(), totpOpts)
	if err != nil {
		// malformed codes are just wrong codes
		return false, nil
	}
	return valid, nil
}

// GenerateCode returns the current code for a plaintext secret
func (tm *TOTPManager) GenerateCode(secret string) (string, error) {
	return totp.GenerateCodeCustom(secret, tm.now(), totp.ValidateOpts{
		Period:    totpOpts.Period,
		Digits:    totpOpts.Digits,
		Algorithm: totpOpts.Algorithm,
	})
}

func (tm *TOTPManager) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(tm.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// GenerateBackupCodes returns count plaintext codes and their bcrypt hashes
func GenerateBackupCodes(count int) ([]string, []string, error) {
	codes := make([]string, count)
	hashes := make([]string, count)
	max := big.NewInt(int64(len(backupCodeCharset)))

	for i := 0; i < count; i++ {
		var b strings.Builder
		for j := 0; j < backupCodeLength; j++ {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to generate backup code: %w", err)
			}
			b.WriteByte(backupCodeCharset[n.Int64()])
		}
		codes[i] = b.String()

		hash, err := bcrypt.GenerateFromPassword([]byte(codes[i]), backupCodeCost)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to hash backup code: %w", err)
		}
		hashes[i] = string(hash)
	}

	return codes, hashes, nil
}

// MatchBackupCode returns the index of the hash matching code, or -1
func MatchBackupCode(hashes []string, code string) int {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != backupCodeLength {
		return -1
	}
	for i, h := range hashes {
		if bcrypt.CompareHashAndPassword([]byte(h), []byte(code)) == nil {
			return i
		}
	}
	return -1
}

// RemoveBackupCode returns hashes without the entry at index i
func RemoveBackupCode(hashes []string, i int) []string {
	out := make([]string, 0, len(hashes))
	out = append(out, hashes[:i]...)
	return append(out, hashes[i+1:]...)
}
