package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/evanofslack/ipv64-dns01/internal/acme"
	"github.com/evanofslack/ipv64-dns01/internal/config"
	"github.com/evanofslack/ipv64-dns01/internal/logger"
	"github.com/evanofslack/ipv64-dns01/internal/metrics"
	"github.com/evanofslack/ipv64-dns01/internal/provider/ipv64"
	"github.com/evanofslack/ipv64-dns01/internal/solver"
)

const challengePrefix = "_acme-challenge."

// app carries what the subcommands share once setup has run.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics *metrics.Metrics

	getenv     func(string) string
	clientOpts []ipv64.Option
}

func newCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "ipv64-dns01",
		Usage: "Answer ACME dns-01 challenges with IPv64 TXT records",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "path to the YAML config file",
				Sources: cli.EnvVars("IPV64_DNS01_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "metrics-textfile",
				Usage: "write prometheus metrics to this file on exit",
			},
		},
		Before: a.setup,
		Commands: []*cli.Command{
			{
				Name:      "present",
				Usage:     "Create the validation TXT records",
				ArgsUsage: "[FQDN VALUE]...",
				Description: `Without arguments the certbot manual hook variables
CERTBOT_DOMAIN and CERTBOT_VALIDATION are used.`,
				Action: a.present,
			},
			{
				Name:      "cleanup",
				Usage:     "Delete the validation TXT records",
				ArgsUsage: "[FQDN VALUE]...",
				Description: `Record failures are logged and never fail the command,
so a certificate order is not blocked by cleanup.`,
				Action: a.cleanup,
			},
			{
				Name:      "obtain",
				Usage:     "Order a certificate using dns-01 validation",
				ArgsUsage: "[DOMAIN]...",
				Action:    a.obtain,
			},
		},
	}
}

func (a *app) setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return ctx, fmt.Errorf("failed to load config: %w", err)
	}
	if textfile := cmd.String("metrics-textfile"); textfile != "" {
		cfg.Metrics.Textfile = textfile
	}
	a.cfg = cfg
	a.log = logger.Configure(cfg.Log.Level, cfg.Log.Env)
	a.metrics = metrics.New(true)
	return ctx, nil
}

// newSolver validates the token, so it runs only for commands that talk to
// the API.
func (a *app) newSolver() (*solver.Solver, error) {
	client, err := ipv64.New(a.cfg.IPv64, a.log, a.metrics, a.clientOpts...)
	if err != nil {
		return nil, err
	}
	return solver.New(client, a.log, a.metrics), nil
}

func (a *app) present(ctx context.Context, cmd *cli.Command) error {
	chs, err := challengesFromArgs(cmd.Args().Slice(), a.getenv)
	if err != nil {
		return err
	}

	s, err := a.newSolver()
	if err != nil {
		return err
	}

	results, err := s.PerformAll(ctx, chs)
	if err != nil {
		// Withdraw what was published so far; the order is lost anyway.
		// This still runs after SIGINT, bounded by the client timeout.
		if len(results.Performed) > 0 {
			s.CleanUpAll(context.WithoutCancel(ctx), results.Performed)
		}
		return err
	}
	a.log.Info("Challenges presented", "count", len(results.Performed))
	return nil
}

func (a *app) cleanup(ctx context.Context, cmd *cli.Command) error {
	chs, err := challengesFromArgs(cmd.Args().Slice(), a.getenv)
	if err != nil {
		return err
	}
	s, err := a.newSolver()
	if err != nil {
		return err
	}
	s.CleanUpAll(context.WithoutCancel(ctx), chs)
	return nil
}

func (a *app) obtain(ctx context.Context, cmd *cli.Command) error {
	domains := cmd.Args().Slice()
	if len(domains) == 0 {
		domains = a.cfg.ACME.Domains
	}

	s, err := a.newSolver()
	if err != nil {
		return err
	}

	if addr := a.cfg.Metrics.Listen; addr != "" {
		stop := a.serveMetrics(addr)
		defer stop()
	}

	_, err = acme.New(a.cfg.ACME, s, a.log, a.metrics).Obtain(ctx, domains)
	return err
}

// serveMetrics exposes /metrics until the returned func is called.
func (a *app) serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		a.log.Info("Starting metrics server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			a.log.Error("Metrics server shutdown error", "error", err)
		}
	}
}

func (a *app) flushMetrics() {
	if a.cfg == nil || a.metrics == nil || a.cfg.Metrics.Textfile == "" {
		return
	}
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		a.log.Warn("Failed to write metrics textfile", "path", a.cfg.Metrics.Textfile, "error", err)
	}
}

// challengesFromArgs reads FQDN VALUE pairs as passed by lego's exec
// provider, or the certbot hook environment when there are none.
func challengesFromArgs(args []string, getenv func(string) string) ([]solver.Challenge, error) {
	if len(args) == 0 {
		domain := getenv("CERTBOT_DOMAIN")
		validation := getenv("CERTBOT_VALIDATION")
		if domain == "" || validation == "" {
			return nil, errors.New("expected FQDN VALUE arguments or CERTBOT_DOMAIN and CERTBOT_VALIDATION")
		}
		return []solver.Challenge{solver.ForDomain(domain, validation)}, nil
	}

	if len(args)%2 != 0 {
		return nil, fmt.Errorf("expected FQDN VALUE pairs, got %d arguments", len(args))
	}

	chs := make([]solver.Challenge, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		name := strings.TrimSuffix(args[i], ".")
		chs = append(chs, solver.Challenge{
			Domain:         strings.TrimPrefix(name, challengePrefix),
			ValidationName: name,
			Validation:     args[i+1],
		})
	}
	return chs, nil
}
