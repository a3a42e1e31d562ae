package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateCredentials(t *testing.T) {
	cases := []struct {
		name, password string
		wantErr        bool
	}{
		{"ab", "secret1", true},
		{"alice", "short", true},
		{"abc", "secret", false},
		{"alice", "secret1", false},
	}
	for _, c := range cases {
		err := ValidateCredentials(c.name, c.password)
		if (err != nil) != c.wantErr {
			t.Fatalf("ValidateCredentials(%q, %q) = %v, wantErr %v", c.name, c.password, err, c.wantErr)
		}
	}
}

func TestValidateTextLimit(t *testing.T) {
	SetLimits(Limits{MaxMessageBytes: 10})
	t.Cleanup(func() { SetLimits(Limits{}) })

	if err := ValidateText("short"); err != nil {
		t.Fatalf("within limit: %v", err)
	}
	err := ValidateText(strings.Repeat("x", 11))
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge, got %v", err)
	}
}

func TestValidateTextUnbounded(t *testing.T) {
	SetLimits(Limits{})
	if err := ValidateText(strings.Repeat("x", 1<<20)); err != nil {
		t.Fatalf("zero limit must mean unbounded: %v", err)
	}
}
