package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/Tom-Bini/manus-bridge-bot/internal/domain/entities"
	"golang.org/x/crypto/pbkdf2"
)

// EncryptedData is the at-rest private key envelope: a fresh salt and nonce
// per encryption, hex-encoded, wrapped in JSON.
type EncryptedData struct {
	Algorithm string `json:"algorithm"`
	Salt      string `json:"salt"`
	Nonce     string `json:"nonce"`
	Data      string `json:"data"`
}

const algorithmGCM = "aes-256-gcm"

// AESCrypto encrypts and decrypts private keys with AES-256-GCM. The key is
// derived per blob with PBKDF2 from the process-wide passphrase.
type AESCrypto struct {
	passphrase string
}

// NewAESCrypto creates a crypto box for the given passphrase. The passphrase
// comes from the startup config object; it is never looked up globally.
func NewAESCrypto(passphrase string) (*AESCrypto, error) {
	if passphrase == "" {
		return nil, errors.New("wallet encryption passphrase is empty")
	}
	return &AESCrypto{passphrase: passphrase}, nil
}

// generateSalt creates a random 16-byte salt
func (a *AESCrypto) generateSalt() ([]byte, error) {
	salt := make([]byte, 16)
	_, err := rand.Read(salt)
	return salt, err
}

// deriveKey creates a 32-byte key using PBKDF2
func (a *AESCrypto) deriveKey(salt []byte) []byte {
	return pbkdf2.Key([]byte(a.passphrase), salt, 10000, 32, sha256.New)
}

// EncryptPrivateKey encrypts a private key and returns the base64-wrapped
// JSON envelope stored in the wallets table.
func (a *AESCrypto) EncryptPrivateKey(privateKey []byte) (string, error) {
	salt, err := a.generateSalt()
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(a.deriveKey(salt))
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nil, nonce, privateKey, nil)

	envelope := EncryptedData{
		Algorithm: algorithmGCM,
		Salt:      hex.EncodeToString(salt),
		Nonce:     hex.EncodeToString(nonce),
		Data:      hex.EncodeToString(ciphertext),
	}

	jsonBytes, err := json.Marshal(envelope)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(jsonBytes), nil
}

// DecryptPrivateKey decrypts an envelope produced by EncryptPrivateKey. Any
// failure (wrong passphrase, corrupted blob, auth tag mismatch) is returned
// as ErrDecryptionFailure and must not be retried.
func (a *AESCrypto) DecryptPrivateKey(encoded string) ([]byte, error) {
	jsonBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, decryptError(err)
	}

	var envelope EncryptedData
	if err := json.Unmarshal(jsonBytes, &envelope); err != nil {
		return nil, decryptError(err)
	}

	if envelope.Algorithm != algorithmGCM {
		return nil, decryptError(errors.New("unsupported algorithm " + envelope.Algorithm))
	}

	salt, err := hex.DecodeString(envelope.Salt)
	if err != nil {
		return nil, decryptError(err)
	}
	nonce, err := hex.DecodeString(envelope.Nonce)
	if err != nil {
		return nil, decryptError(err)
	}
	ciphertext, err := hex.DecodeString(envelope.Data)
	if err != nil {
		return nil, decryptError(err)
	}

	block, err := aes.NewCipher(a.deriveKey(salt))
	if err != nil {
		return nil, decryptError(err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, decryptError(err)
	}

	if len(nonce) != gcm.NonceSize() {
		return nil, decryptError(errors.New("invalid nonce length"))
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, decryptError(err)
	}

	return plaintext, nil
}

func decryptError(cause error) error {
	return errors.Join(entities.ErrDecryptionFailure, cause)
}

// Zero overwrites a decrypted key buffer. Callers must invoke it as soon as
// the signing scope ends.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
