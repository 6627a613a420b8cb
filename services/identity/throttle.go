// Package identity holds what every identity provider client shares.
package identity

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/trezcool/tutorhub/core/provision"
)

type (
	throttledProvider struct {
		provider provision.Provider
		limiter  *rate.Limiter
	}

	throttledLookuper struct {
		throttledProvider
		lookuper provision.Lookuper
	}
)

// Throttle limits calls to provider to rps requests per second.
// provider is returned as is when rps is not positive. Lookups are throttled too when provider supports them.
func Throttle(provider provision.Provider, rps float64) provision.Provider {
	if rps <= 0 {
		return provider
	}
	tp := throttledProvider{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
	}
	if l, ok := provider.(provision.Lookuper); ok {
		return &throttledLookuper{throttledProvider: tp, lookuper: l}
	}
	return &tp
}

func (tp *throttledProvider) wait(ctx context.Context) error {
	return errors.Wrap(tp.limiter.Wait(ctx), "waiting for the identity provider rate limit")
}

func (tp *throttledProvider) InviteUser(ctx context.Context, email string, meta provision.Metadata) error {
	if err := tp.wait(ctx); err != nil {
		return err
	}
	return tp.provider.InviteUser(ctx, email, meta)
}

func (tp *throttledProvider) CreateUser(ctx context.Context, email, password string, meta provision.Metadata) error {
	if err := tp.wait(ctx); err != nil {
		return err
	}
	return tp.provider.CreateUser(ctx, email, password, meta)
}

func (tl *throttledLookuper) LookupUserByEmail(ctx context.Context, email string) (bool, error) {
	if err := tl.wait(ctx); err != nil {
		return false, err
	}
	return tl.lookuper.LookupUserByEmail(ctx, email)
}
