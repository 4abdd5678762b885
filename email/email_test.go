package email

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"User@Example.com", "user@example.com"},
		{"  a@b.co \t", "a@b.co"},
		{"already@lower.io", "already@lower.io"},
		{"", ""},
	}

	for _, tt := range tests {
		got := Normalize(tt.in)
		if got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if again := Normalize(got); again != got {
			t.Errorf("Normalize not idempotent for %q: %q then %q", tt.in, got, again)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		address string
		opts    Options
		wantErr error
	}{
		{"plain address", "a@example.com", Options{}, nil},
		{"mixed case and spaces", "  Jane.Doe@Company.IO ", Options{BlockDisposable: true}, nil},
		{"empty", "", Options{}, ErrInvalidFormat},
		{"missing at", "userexample.com", Options{}, ErrInvalidFormat},
		{"missing domain", "user@", Options{}, ErrInvalidFormat},
		{"no dot in domain", "user@localhost", Options{}, ErrInvalidFormat},
		{"numeric tld", "user@host.123", Options{}, ErrInvalidFormat},
		{"one letter tld", "user@host.c", Options{}, ErrInvalidFormat},
		{"blocked test tld", "user@foo.test", Options{}, ErrBlockedDomain},
		{"blocked invalid tld", "user@foo.invalid", Options{}, ErrBlockedDomain},
		{"blocked localhost tld", "user@my.localhost", Options{}, ErrBlockedDomain},
		{"blocked tld upper case", "user@FOO.TEST", Options{}, ErrBlockedDomain},
		{"disposable blocked", "user@mailinator.com", Options{BlockDisposable: true}, ErrDisposableDomain},
		{"disposable allowed", "user@mailinator.com", Options{BlockDisposable: false}, nil},
		{"disposable subdomain", "user@eu.yopmail.com", Options{BlockDisposable: true}, ErrDisposableDomain},
		{"lookalike not disposable", "user@notmailinator.com", Options{BlockDisposable: true}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.address, tt.opts)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate(%q) = %v, want %v", tt.address, err, tt.wantErr)
			}
		})
	}
}

func TestValidate_TooLong(t *testing.T) {
	label := strings.Repeat("b", 60)
	addr := strings.Repeat("a", 64) + "@" + label + "." + label + "." + label + "." + label + ".com"
	if len(addr) <= MaxLength {
		t.Fatalf("test address is only %d bytes", len(addr))
	}
	if err := Validate(addr, Options{}); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestValidate_LengthBoundary(t *testing.T) {
	local := strings.Repeat("a", 64)
	tests := []struct {
		name    string
		address string
		size    int
		wantErr error
	}{
		{
			name:    "at limit",
			address: local + "@" + strings.Repeat("b", 60) + "." + strings.Repeat("c", 60) + "." + strings.Repeat("d", 63) + ".com",
			size:    MaxLength,
		},
		{
			name:    "one over limit",
			address: local + "@" + strings.Repeat("b", 61) + "." + strings.Repeat("c", 60) + "." + strings.Repeat("d", 63) + ".com",
			size:    MaxLength + 1,
			wantErr: ErrInvalidFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if len(tt.address) != tt.size {
				t.Fatalf("test address is %d bytes, want %d", len(tt.address), tt.size)
			}
			if err := Validate(tt.address, Options{}); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_DisposableToggle(t *testing.T) {
	for _, addr := range []string{"x@mailinator.com", "x@guerrillamail.com", "x@10minutemail.com"} {
		if err := Validate(addr, Options{BlockDisposable: true}); !errors.Is(err, ErrDisposableDomain) {
			t.Errorf("%s with BlockDisposable: got %v", addr, err)
		}
		if err := Validate(addr, Options{BlockDisposable: false}); err != nil {
			t.Errorf("%s without BlockDisposable: got %v", addr, err)
		}
	}
}

func TestPolicy_WithDisposableDomains(t *testing.T) {
	p := NewPolicy(WithDisposableDomains("Burner.Example.org", " "))

	if err := p.Validate("x@burner.example.org", Options{BlockDisposable: true}); !errors.Is(err, ErrDisposableDomain) {
		t.Errorf("expected configured domain to be disposable, got %v", err)
	}
	if err := p.Validate("x@mailinator.com", Options{BlockDisposable: true}); !errors.Is(err, ErrDisposableDomain) {
		t.Errorf("expected built-in list to remain, got %v", err)
	}
	if err := DefaultPolicy().Validate("x@burner.example.org", Options{BlockDisposable: true}); err != nil {
		t.Errorf("default policy must not see extras, got %v", err)
	}
}

func TestPolicy_WithBlockedTLDs(t *testing.T) {
	p := NewPolicy(WithBlockedTLDs(".corp"))
	if err := p.Validate("x@intranet.corp", Options{}); !errors.Is(err, ErrBlockedDomain) {
		t.Errorf("expected ErrBlockedDomain, got %v", err)
	}
}

func TestDomain(t *testing.T) {
	if got := Domain("a@b.com"); got != "b.com" {
		t.Errorf("Domain = %q", got)
	}
	if got := Domain("nope"); got != "" {
		t.Errorf("Domain without @ = %q", got)
	}
}
