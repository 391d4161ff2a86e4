package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Payment method references the sandbox understands. Anything else
// succeeds.
const (
	SandboxDeclined  = "tok_declined"
	SandboxVerify    = "tok_verify"
	SandboxTransient = "tok_transient"
)

// Sandbox is a deterministic in-process Gateway for local runs and tests.
// Outcomes depend only on the payment method reference, and a replayed
// idempotency key returns the first outcome unchanged.
type Sandbox struct {
	mu          sync.Mutex
	outcomes    map[string]*Outcome
	charges     []Charge
	redirectURL string
}

// SandboxOption configures a Sandbox.
type SandboxOption func(*Sandbox)

// WithRedirectBase sets the URL verification redirects point at.
func WithRedirectBase(url string) SandboxOption {
	return func(s *Sandbox) { s.redirectURL = strings.TrimRight(url, "/") }
}

func NewSandbox(opts ...SandboxOption) *Sandbox {
	s := &Sandbox{
		outcomes:    make(map[string]*Outcome),
		redirectURL: "https://sandbox.invalid/verify",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Charge implements Gateway.
func (s *Sandbox) Charge(ctx context.Context, c Charge) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.outcomes[c.IdempotencyKey]; ok {
		out := *prev
		return &out, nil
	}
	s.charges = append(s.charges, c)

	ref := "sbx_" + strings.ReplaceAll(c.IdempotencyKey, ":", "_")

	var out *Outcome
	switch c.PaymentMethodRef {
	case SandboxTransient:
		// Transient failures are not remembered so the same key can retry.
		return nil, fmt.Errorf("sandbox: processor timeout: %w", ErrTransient)
	case SandboxDeclined:
		out = &Outcome{Status: StatusFailed, Reference: ref, FailureReason: "card declined"}
	case SandboxVerify:
		out = &Outcome{Status: StatusRequiresVerification, Reference: ref, RedirectURL: s.redirectURL + "/" + ref}
	default:
		if !c.Amount.IsPositive() {
			out = &Outcome{Status: StatusFailed, Reference: ref, FailureReason: "amount must be positive"}
		} else {
			out = &Outcome{Status: StatusSucceeded, Reference: ref}
		}
	}

	s.outcomes[c.IdempotencyKey] = out
	res := *out
	return &res, nil
}

// Charges returns every charge the sandbox accepted, in order.
func (s *Sandbox) Charges() []Charge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Charge(nil), s.charges...)
}
