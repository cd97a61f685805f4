package acme

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-acme/lego/v4/certificate"
)

// loadOrCreateAccountKey reads the PEM account key at path, generating
// and persisting a P-256 key when none exists yet.
func loadOrCreateAccountKey(path string) (crypto.PrivateKey, bool, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		key, err := parsePrivateKey(data)
		if err != nil {
			return nil, false, fmt.Errorf("failed to parse account key %s: %w", path, err)
		}
		return key, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, fmt.Errorf("failed to read account key: %w", err)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, false, fmt.Errorf("failed to generate account key: %w", err)
	}
	keyPem, err := encodePrivateKey(key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode account key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, false, err
	}
	if err := os.WriteFile(path, keyPem, 0o600); err != nil {
		return nil, false, fmt.Errorf("failed to save account key: %w", err)
	}
	return key, true, nil
}

func parsePrivateKey(keyPem []byte) (crypto.PrivateKey, error) {
	block, _ := pem.Decode(keyPem)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, errors.New("unsupported private key type")
}

func encodePrivateKey(key crypto.PrivateKey) ([]byte, error) {
	k, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("unsupported private key type")
	}
	keyBytes, err := x509.MarshalECPrivateKey(k)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes}), nil
}

// saveResource writes <domain>.crt, <domain>.key and <domain>.issuer.crt.
// Wildcard domains are stored as _.example.com.
func saveResource(dir string, res *certificate.Resource) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	base := filepath.Join(dir, sanitizedDomain(res.Domain))

	files := []struct {
		path string
		data []byte
		perm os.FileMode
	}{
		{base + ".crt", res.Certificate, 0o644},
		{base + ".key", res.PrivateKey, 0o600},
		{base + ".issuer.crt", res.IssuerCertificate, 0o644},
	}
	for _, f := range files {
		if len(f.data) == 0 {
			continue
		}
		if err := os.WriteFile(f.path, f.data, f.perm); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.path, err)
		}
	}
	return nil
}

func sanitizedDomain(domain string) string {
	return strings.ReplaceAll(domain, "*", "_")
}
