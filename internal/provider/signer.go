package provider

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"

	"github.com/nyumba-labs/nyumba-payments/internal/domain"
)

// Signer produces the RSA-SHA256 signatures some providers require on push
// requests. Construction fails fast on missing or malformed key material so
// no unsigned request ever leaves the adapter.
type Signer struct {
	key *rsa.PrivateKey
}

func NewSigner(pemData string) (*Signer, error) {
	if pemData == "" {
		return nil, fmt.Errorf("NewSigner: %w", domain.ErrInvalidSigningKey)
	}

	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("NewSigner: no PEM block: %w", domain.ErrInvalidSigningKey)
	}

	var key *rsa.PrivateKey
	switch block.Type {
	case "RSA PRIVATE KEY":
		k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("NewSigner: %v: %w", err, domain.ErrInvalidSigningKey)
		}
		key = k
	case "PRIVATE KEY":
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("NewSigner: %v: %w", err, domain.ErrInvalidSigningKey)
		}
		rsaKey, ok := k.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("NewSigner: not an RSA key: %w", domain.ErrInvalidSigningKey)
		}
		key = rsaKey
	default:
		return nil, fmt.Errorf("NewSigner: unexpected PEM type %q: %w", block.Type, domain.ErrInvalidSigningKey)
	}

	return &Signer{key: key}, nil
}

// Sign returns the base64 RSA-SHA256 signature over the provider-defined
// concatenation.
func (s *Signer) Sign(payload string) (string, error) {
	digest := sha256.Sum256([]byte(payload))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("Sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}
