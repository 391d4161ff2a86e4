package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/tablebill/types"
)

func TestSandboxOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		method string
		amount int64
		want   Status
	}{
		{"Success", "tok_visa", 10_00, StatusSucceeded},
		{"Declined", SandboxDeclined, 10_00, StatusFailed},
		{"Verification", SandboxVerify, 10_00, StatusRequiresVerification},
		{"Zero amount", "tok_visa", 0, StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSandbox()
			out, err := s.Charge(context.Background(), Charge{
				IdempotencyKey:   "pint_x:0",
				PaymentMethodRef: tt.method,
				Amount:           types.MXN(tt.amount),
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.Status != tt.want {
				t.Errorf("Status: got %s, want %s", out.Status, tt.want)
			}
			if tt.want == StatusRequiresVerification && out.RedirectURL == "" {
				t.Error("expected a redirect URL")
			}
		})
	}
}

func TestSandboxTransient(t *testing.T) {
	s := NewSandbox()
	_, err := s.Charge(context.Background(), Charge{IdempotencyKey: "k:0", PaymentMethodRef: SandboxTransient, Amount: types.MXN(1_00)})
	if !errors.Is(err, ErrTransient) {
		t.Errorf("got %v, want ErrTransient", err)
	}
}

func TestSandboxIdempotent(t *testing.T) {
	s := NewSandbox()
	c := Charge{IdempotencyKey: "k:0", PaymentMethodRef: "tok_visa", Amount: types.MXN(5_00)}

	first, err := s.Charge(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.PaymentMethodRef = SandboxDeclined
	second, err := s.Charge(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if second.Status != first.Status || second.Reference != first.Reference {
		t.Errorf("replay changed outcome: %+v != %+v", second, first)
	}
	if n := len(s.Charges()); n != 1 {
		t.Errorf("Charges: got %d, want 1", n)
	}
}

func TestSandboxCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewSandbox().Charge(ctx, Charge{IdempotencyKey: "k:0"}); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}
