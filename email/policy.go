package email

import "strings"

// Policy holds the domain tables consulted by Validate. A Policy is read-only
// after construction and safe for concurrent use.
type Policy struct {
	blockedTLDs map[string]struct{}
	disposable  map[string]struct{}
}

var blockedTLDs = []string{
	"test",
	"invalid",
	"localhost",
	"local",
	"example",
	"internal",
}

var disposableDomains = []string{
	"10minutemail.com",
	"10minutemail.net",
	"20minutemail.com",
	"33mail.com",
	"burnermail.io",
	"discard.email",
	"dispostable.com",
	"emailondeck.com",
	"fakeinbox.com",
	"getairmail.com",
	"getnada.com",
	"guerrillamail.biz",
	"guerrillamail.com",
	"guerrillamail.de",
	"guerrillamail.info",
	"guerrillamail.net",
	"guerrillamail.org",
	"guerrillamailblock.com",
	"harakirimail.com",
	"inboxkitten.com",
	"jetable.org",
	"mailcatch.com",
	"maildrop.cc",
	"mailinator.com",
	"mailinator.net",
	"mailnesia.com",
	"mintemail.com",
	"mohmal.com",
	"mytemp.email",
	"sharklasers.com",
	"spam4.me",
	"spamgourmet.com",
	"temp-mail.io",
	"temp-mail.org",
	"tempail.com",
	"tempmail.com",
	"tempmail.net",
	"tempmailo.com",
	"tempr.email",
	"throwawaymail.com",
	"trashmail.com",
	"trashmail.de",
	"trashmail.net",
	"yopmail.com",
	"yopmail.fr",
	"yopmail.net",
}

var defaultPolicy = NewPolicy()

// DefaultPolicy returns the policy used by the package-level Validate.
func DefaultPolicy() *Policy {
	return defaultPolicy
}

// PolicyOption configures a Policy.
type PolicyOption func(*Policy)

// WithDisposableDomains adds domains to the disposable set.
func WithDisposableDomains(domains ...string) PolicyOption {
	return func(p *Policy) {
		for _, d := range domains {
			if d = Normalize(d); d != "" {
				p.disposable[d] = struct{}{}
			}
		}
	}
}

// WithBlockedTLDs adds top-level domains that are always rejected.
func WithBlockedTLDs(tlds ...string) PolicyOption {
	return func(p *Policy) {
		for _, t := range tlds {
			if t = strings.TrimPrefix(Normalize(t), "."); t != "" {
				p.blockedTLDs[t] = struct{}{}
			}
		}
	}
}

// NewPolicy returns the built-in tables extended by opts.
func NewPolicy(opts ...PolicyOption) *Policy {
	p := &Policy{
		blockedTLDs: make(map[string]struct{}, len(blockedTLDs)),
		disposable:  make(map[string]struct{}, len(disposableDomains)),
	}
	WithBlockedTLDs(blockedTLDs...)(p)
	WithDisposableDomains(disposableDomains...)(p)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IsDisposable reports whether domain or any parent domain is in the disposable set.
func (p *Policy) IsDisposable(domain string) bool {
	domain = Normalize(domain)
	for domain != "" {
		if _, ok := p.disposable[domain]; ok {
			return true
		}
		dot := strings.IndexByte(domain, '.')
		if dot < 0 {
			return false
		}
		domain = domain[dot+1:]
	}
	return false
}
