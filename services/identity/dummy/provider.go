package dummyidentity

import (
	"context"
	"strings"
	"sync"

	"github.com/trezcool/tutorhub/core/provision"
)

const alreadyRegistered = "User already registered"

// Call is one recorded provider call.
type Call struct {
	Op    string // invite | create | lookup
	Email string
	Meta  provision.Metadata
}

// Provider keeps identities in memory and rejects emails it already knows, like real providers do.
type Provider struct {
	mu    sync.Mutex
	known map[string]bool
	fail  map[string]error
	calls []Call
}

var (
	_ provision.Provider = (*Provider)(nil)
	_ provision.Lookuper = (*Provider)(nil)
)

func NewProvider(existing ...string) *Provider {
	p := &Provider{known: make(map[string]bool), fail: make(map[string]error)}
	for _, email := range existing {
		p.known[strings.ToLower(email)] = true
	}
	return p
}

// FailWith makes every call for email return err.
func (p *Provider) FailWith(email string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail[email] = err
}

func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

func (p *Provider) Known(email string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.known[email]
}

func (p *Provider) record(op, email string, meta provision.Metadata) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, Call{Op: op, Email: email, Meta: meta})
	if err, ok := p.fail[email]; ok {
		return err
	}
	if p.known[email] {
		return &provision.ProviderError{Status: 422, Message: alreadyRegistered}
	}
	p.known[email] = true
	return nil
}

func (p *Provider) InviteUser(_ context.Context, email string, meta provision.Metadata) error {
	return p.record("invite", email, meta)
}

func (p *Provider) CreateUser(_ context.Context, email, _ string, meta provision.Metadata) error {
	return p.record("create", email, meta)
}

func (p *Provider) LookupUserByEmail(_ context.Context, email string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, Call{Op: "lookup", Email: email})
	return p.known[email], nil
}
