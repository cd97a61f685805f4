package acme

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"

	"github.com/evanofslack/ipv64-dns01/internal/config"
	"github.com/evanofslack/ipv64-dns01/internal/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadOrCreateAccountKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "certs", accountKeyFile)

	first, created, err := loadOrCreateAccountKey(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("expected a new key on first use")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("account key not persisted: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("account key mode = %o, want 600", perm)
	}

	second, created, err := loadOrCreateAccountKey(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Error("expected the stored key to be reused")
	}
	if !first.(*ecdsa.PrivateKey).Equal(second) {
		t.Error("reloaded key differs from generated key")
	}
}

func TestLoadOrCreateAccountKey_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), accountKeyFile)
	if err := os.WriteFile(path, []byte("not a key"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := loadOrCreateAccountKey(path); err == nil {
		t.Fatal("expected error for corrupt key")
	}
}

func TestSaveResource(t *testing.T) {
	dir := t.TempDir()
	res := &certificate.Resource{
		Domain:            "*.example.com",
		Certificate:       []byte("cert"),
		PrivateKey:        []byte("key"),
		IssuerCertificate: []byte("issuer"),
	}
	if err := saveResource(dir, res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]string{
		"_.example.com.crt":        "cert",
		"_.example.com.key":        "key",
		"_.example.com.issuer.crt": "issuer",
	}
	for name, content := range want {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Errorf("missing %s: %v", name, err)
			continue
		}
		if string(data) != content {
			t.Errorf("%s = %q, want %q", name, data, content)
		}
	}
}

func TestParseKeyType(t *testing.T) {
	tests := []struct {
		in        string
		want      certcrypto.KeyType
		expectErr bool
	}{
		{in: "", want: certcrypto.EC256},
		{in: "EC256", want: certcrypto.EC256},
		{in: "ec384", want: certcrypto.EC384},
		{in: "rsa4096", want: certcrypto.RSA4096},
		{in: "dsa", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseKeyType(tt.in)
			if tt.expectErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("parseKeyType(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNameservers(t *testing.T) {
	got := nameservers([]string{"1.1.1.1", " 8.8.8.8:53 ", "", "2606:4700:4700::1111"})
	want := []string{"1.1.1.1:53", "8.8.8.8:53", "[2606:4700:4700::1111]:53"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("nameservers = %v, want %v", got, want)
	}
}

func TestObtain_NoDomains(t *testing.T) {
	m := metrics.New(true)
	c := New(config.ACME{CertDir: t.TempDir()}, nil, discardLogger(), m)

	if _, err := c.Obtain(context.Background(), nil); !errors.Is(err, ErrNoDomains) {
		t.Fatalf("expected ErrNoDomains, got %v", err)
	}
	textfile := filepath.Join(t.TempDir(), "acme.prom")
	if err := m.WriteTextfile(textfile); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(textfile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `ipv64_dns01_certificates_total{status="failure"} 1`) {
		t.Errorf("expected one failed certificate in:\n%s", data)
	}
}
