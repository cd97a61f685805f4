package solver

import (
	"context"
	"strings"
	"time"

	"github.com/go-acme/lego/v4/challenge"
	"github.com/go-acme/lego/v4/challenge/dns01"
)

// Interface guards
var (
	_ challenge.Provider        = (*LegoProvider)(nil)
	_ challenge.ProviderTimeout = (*LegoProvider)(nil)
)

// LegoProvider plugs the solver into lego as a dns-01 provider.
type LegoProvider struct {
	ctx      context.Context
	solver   *Solver
	timeout  time.Duration
	interval time.Duration
}

// NewLegoProvider binds the solver to ctx, since lego's callbacks carry
// none. timeout and interval tune lego's propagation check.
func NewLegoProvider(ctx context.Context, s *Solver, timeout, interval time.Duration) *LegoProvider {
	return &LegoProvider{
		ctx:      ctx,
		solver:   s,
		timeout:  timeout,
		interval: interval,
	}
}

func (p *LegoProvider) Present(domain, token, keyAuth string) error {
	return p.solver.Perform(p.ctx, legoChallenge(domain, keyAuth))
}

// CleanUp always succeeds: failures were logged by the solver and must not
// fail the order. It ignores cancellation of the bound context so records
// are still withdrawn after an interrupt.
func (p *LegoProvider) CleanUp(domain, token, keyAuth string) error {
	_ = p.solver.CleanUp(context.WithoutCancel(p.ctx), legoChallenge(domain, keyAuth))
	return nil
}

func (p *LegoProvider) Timeout() (timeout, interval time.Duration) {
	return p.timeout, p.interval
}

func legoChallenge(domain, keyAuth string) Challenge {
	info := dns01.GetChallengeInfo(domain, keyAuth)
	return Challenge{
		Domain:         domain,
		ValidationName: strings.TrimSuffix(info.EffectiveFQDN, "."),
		Validation:     info.Value,
	}
}
