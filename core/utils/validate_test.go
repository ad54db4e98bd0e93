package utils

import "testing"

func TestValidateEmail(t *testing.T) {
	cases := map[string]bool{
		"ann@x.com":        true,
		"ann.lee@corp.io":  true,
		"":                 false,
		"ann":              false,
		"ann@localhost":    false,
		"Ann <ann@x.com>":  false,
		"ann@x.com extra":  false,
	}
	for in, ok := range cases {
		err := ValidateEmail(in)
		if ok && err != nil {
			t.Fatalf("%q: unexpected error %v", in, err)
		}
		if !ok && err == nil {
			t.Fatalf("%q: expected error", in)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("secret", 6); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidatePassword("short", 6); err == nil {
		t.Fatalf("expected min length error")
	}
	if err := ValidatePassword("", 0); err == nil {
		t.Fatalf("expected required error")
	}
}

func TestValidateName(t *testing.T) {
	if err := ValidateName("  "); err != ErrNameRequired {
		t.Fatalf("expected ErrNameRequired, got %v", err)
	}
	if err := ValidateName("Ann"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
