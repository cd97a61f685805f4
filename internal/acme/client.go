package acme

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"strings"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/challenge/dns01"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"

	"github.com/evanofslack/ipv64-dns01/internal/config"
	"github.com/evanofslack/ipv64-dns01/internal/metrics"
	"github.com/evanofslack/ipv64-dns01/internal/solver"
)

const accountKeyFile = "account.key"

var ErrNoDomains = errors.New("no domains to certify")

// User implements registration.User for lego
type User struct {
	Email        string
	Registration *registration.Resource
	key          crypto.PrivateKey
}

func (u *User) GetEmail() string {
	return u.Email
}

func (u *User) GetRegistration() *registration.Resource {
	return u.Registration
}

func (u *User) GetPrivateKey() crypto.PrivateKey {
	return u.key
}

// Client orders certificates with lego, answering dns-01 challenges
// through the solver.
type Client struct {
	cfg     config.ACME
	solver  *solver.Solver
	log     *slog.Logger
	metrics *metrics.Metrics
}

func New(cfg config.ACME, s *solver.Solver, log *slog.Logger, metrics *metrics.Metrics) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:     cfg,
		solver:  s,
		log:     log,
		metrics: metrics,
	}
}

// Obtain registers (or re-uses) the account and orders one certificate
// covering domains. The result is written to the cert dir.
func (c *Client) Obtain(ctx context.Context, domains []string) (*certificate.Resource, error) {
	res, err := c.obtain(ctx, domains)
	c.metrics.IncCertificate(err == nil)
	if err != nil {
		c.log.Error("Certificate order failed", "domains", domains, "error", err)
		return nil, err
	}
	c.log.Info("Certificate obtained", "domain", res.Domain, "dir", c.cfg.CertDir)
	return res, nil
}

func (c *Client) obtain(ctx context.Context, domains []string) (*certificate.Resource, error) {
	if len(domains) == 0 {
		return nil, ErrNoDomains
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keyType, err := parseKeyType(c.cfg.KeyType)
	if err != nil {
		return nil, err
	}

	key, created, err := loadOrCreateAccountKey(filepath.Join(c.cfg.CertDir, accountKeyFile))
	if err != nil {
		return nil, err
	}
	if created {
		c.log.Info("Generated new account key", "dir", c.cfg.CertDir)
	}

	user := &User{Email: c.cfg.Email, key: key}
	legoCfg := lego.NewConfig(user)
	legoCfg.CADirURL = c.cfg.Server
	if legoCfg.CADirURL == "" {
		legoCfg.CADirURL = lego.LEDirectoryProduction
	}
	legoCfg.Certificate.KeyType = keyType

	client, err := lego.NewClient(legoCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create lego client: %w", err)
	}

	reg, err := client.Registration.Register(registration.RegisterOptions{
		TermsOfServiceAgreed: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register ACME account: %w", err)
	}
	user.Registration = reg

	provider := solver.NewLegoProvider(ctx, c.solver, c.cfg.PropagationTimeout, c.cfg.PollingInterval)
	var opts []dns01.ChallengeOption
	if ns := nameservers(c.cfg.Nameservers); len(ns) > 0 {
		opts = append(opts, dns01.AddRecursiveNameservers(ns))
	}
	if err := client.Challenge.SetDNS01Provider(provider, opts...); err != nil {
		return nil, fmt.Errorf("failed to set DNS provider: %w", err)
	}

	c.log.Info("Requesting certificate", "domains", domains, "server", legoCfg.CADirURL)
	res, err := client.Certificate.Obtain(certificate.ObtainRequest{
		Domains: domains,
		Bundle:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to obtain certificate: %w", err)
	}

	if err := saveResource(c.cfg.CertDir, res); err != nil {
		return nil, err
	}
	return res, nil
}

func parseKeyType(s string) (certcrypto.KeyType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ec256", "p256":
		return certcrypto.EC256, nil
	case "ec384", "p384":
		return certcrypto.EC384, nil
	case "rsa2048":
		return certcrypto.RSA2048, nil
	case "rsa3072":
		return certcrypto.RSA3072, nil
	case "rsa4096":
		return certcrypto.RSA4096, nil
	case "rsa8192":
		return certcrypto.RSA8192, nil
	default:
		return "", fmt.Errorf("unsupported key type %q", s)
	}
}

// nameservers adds the default port to bare resolver addresses.
func nameservers(in []string) []string {
	var out []string
	for _, ns := range in {
		ns = strings.TrimSpace(ns)
		if ns == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(ns); err != nil {
			ns = net.JoinHostPort(ns, "53")
		}
		out = append(out, ns)
	}
	return out
}
