package swr

import (
	"time"

	"github.com/Amund211/deckcache/internal/domain"
)

const (
	DefaultStaleTime        = 5 * time.Minute
	DefaultMaxAge           = 24 * time.Hour
	DefaultDedupingInterval = 2 * time.Second
)

// Policy controls when cached data is served, revalidated or refetched
type Policy struct {
	// Age after which the entry is revalidated in the background
	StaleTime time.Duration
	// Age after which the entry must be refetched before it is served
	MaxAge time.Duration
	// Callers within this window after a fetch completes share its result
	DedupingInterval  time.Duration
	RevalidateOnFocus bool
	OnError           func(key string, err error)
}

func DefaultPolicy() Policy {
	return Policy{
		StaleTime:         DefaultStaleTime,
		MaxAge:            DefaultMaxAge,
		DedupingInterval:  DefaultDedupingInterval,
		RevalidateOnFocus: true,
	}
}

type PolicyOption func(*Policy)

func WithStaleTime(staleTime time.Duration) PolicyOption {
	return func(p *Policy) {
		p.StaleTime = staleTime
	}
}

func WithMaxAge(maxAge time.Duration) PolicyOption {
	return func(p *Policy) {
		p.MaxAge = maxAge
	}
}

func WithDedupingInterval(interval time.Duration) PolicyOption {
	return func(p *Policy) {
		p.DedupingInterval = interval
	}
}

func WithRevalidateOnFocus(revalidate bool) PolicyOption {
	return func(p *Policy) {
		p.RevalidateOnFocus = revalidate
	}
}

func WithOnError(onError func(key string, err error)) PolicyOption {
	return func(p *Policy) {
		p.OnError = onError
	}
}

// WithResourceKind applies the stale time and max age preset for kind
func WithResourceKind(kind domain.ResourceKind) PolicyOption {
	return func(p *Policy) {
		preset := PolicyFor(kind)
		p.StaleTime = preset.StaleTime
		p.MaxAge = preset.MaxAge
	}
}

func NewPolicy(opts ...PolicyOption) Policy {
	policy := DefaultPolicy()
	for _, opt := range opts {
		opt(&policy)
	}
	return policy
}

// PolicyFor returns the default policy with the TTLs tuned for kind
func PolicyFor(kind domain.ResourceKind) Policy {
	policy := DefaultPolicy()

	switch kind {
	case domain.ResourceCards:
		policy.StaleTime = time.Hour
		policy.MaxAge = 7 * 24 * time.Hour
	case domain.ResourceDecks, domain.ResourcePods:
		policy.StaleTime = 5 * time.Minute
		policy.MaxAge = 24 * time.Hour
	case domain.ResourceCollection:
		policy.StaleTime = 15 * time.Minute
		policy.MaxAge = 3 * 24 * time.Hour
	case domain.ResourceTrades:
		// Trades change often
		policy.StaleTime = 30 * time.Second
		policy.MaxAge = 15 * time.Minute
	}

	return policy
}
