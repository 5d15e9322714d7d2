package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *DomainError
		want string
	}{
		{"plain", ErrGridNotFound, "[GB-GRID-4040] no grids found"},
		{"with details", ErrGridNotFound.WithDetails("token=Outpost"), "[GB-GRID-4040] no grids found: token=Outpost"},
		{"formatted details", ErrIdentityNotFound.WithDetailsf("token=%q", "bob"), `[GB-IDEN-4040] identity not found: token="bob"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDomainError_IsByCode(t *testing.T) {
	derived := ErrNoOwner.WithDetails("entity 42").WithCause(fmt.Errorf("boom"))
	if !errors.Is(derived, ErrNoOwner) {
		t.Error("derived error should match its sentinel")
	}
	if errors.Is(derived, ErrInvalidGroup) {
		t.Error("different codes must not match")
	}
	if errors.Is(ErrNoOwner, fmt.Errorf("[GB-GRID-4003] grid has no owner")) {
		t.Error("plain errors must not match")
	}
}

func TestDomainError_CopiesDoNotMutate(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := ErrIO.WithCause(cause)
	if ErrIO.Cause != nil || ErrIO.Details != "" {
		t.Fatal("sentinel was mutated")
	}
	if errors.Unwrap(err) != cause {
		t.Errorf("Unwrap() = %v, want %v", errors.Unwrap(err), cause)
	}
}

func TestIsDomainErrorAndCode(t *testing.T) {
	wrapped := fmt.Errorf("job failed: %w", ErrTimeout)

	if !IsDomainError(wrapped, "") {
		t.Error("IsDomainError(wrapped, \"\") = false")
	}
	if !IsDomainError(wrapped, "GB-JOB-5040") {
		t.Error("IsDomainError(wrapped, code) = false")
	}
	if IsDomainError(fmt.Errorf("x"), "") {
		t.Error("plain error reported as domain error")
	}
	if got := GetErrorCode(wrapped); got != "GB-JOB-5040" {
		t.Errorf("GetErrorCode() = %q", got)
	}
	if got := GetErrorCode(fmt.Errorf("x")); got != "" {
		t.Errorf("GetErrorCode(plain) = %q", got)
	}
}

func TestAsDomainError(t *testing.T) {
	if AsDomainError(nil, ErrIO) != nil {
		t.Error("nil should stay nil")
	}

	de := AsDomainError(fmt.Errorf("wrap: %w", ErrGridAmbiguous), ErrIO)
	if de.Code != ErrGridAmbiguous.Code {
		t.Errorf("Code = %s, want %s", de.Code, ErrGridAmbiguous.Code)
	}

	plain := fmt.Errorf("permission denied")
	de = AsDomainError(plain, ErrIO)
	if de.Code != ErrIO.Code || !errors.Is(de, plain) {
		t.Errorf("foreign error not wrapped: %+v", de)
	}
}
