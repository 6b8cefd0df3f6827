// Package auth abstracts bearer-credential acquisition. The engine never talks
// to an identity provider itself; it consumes tokens handed to it per audience.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// TokenProvider hands out a bearer token valid for the given audience.
type TokenProvider interface {
	Token(ctx context.Context, audience string) (string, error)
}

// StaticTokenProvider returns the same token for every audience. Used when the
// deployment injects a pre-acquired credential through the environment.
type StaticTokenProvider struct {
	token string
}

func NewStaticTokenProvider(token string) (*StaticTokenProvider, error) {
	if token == "" {
		return nil, fmt.Errorf("token is required")
	}
	return &StaticTokenProvider{token: token}, nil
}

func (p *StaticTokenProvider) Token(ctx context.Context, audience string) (string, error) {
	return p.token, nil
}

// CachingTokenProvider caches tokens per audience with a TTL shorter than the
// token lifetime, so repeated runs don't hit the credential collaborator on
// every store call.
type CachingTokenProvider struct {
	inner TokenProvider
	cache *ttlcache.Cache[string, string]
}

func NewCachingTokenProvider(inner TokenProvider, ttl time.Duration) *CachingTokenProvider {
	return &CachingTokenProvider{
		inner: inner,
		cache: ttlcache.New(
			ttlcache.WithTTL[string, string](ttl),
			ttlcache.WithDisableTouchOnHit[string, string](),
		),
	}
}

func (p *CachingTokenProvider) Token(ctx context.Context, audience string) (string, error) {
	if item := p.cache.Get(audience); item != nil {
		return item.Value(), nil
	}
	token, err := p.inner.Token(ctx, audience)
	if err != nil {
		return "", err
	}
	p.cache.Set(audience, token, ttlcache.DefaultTTL)
	return token, nil
}
