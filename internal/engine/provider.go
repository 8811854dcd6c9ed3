package engine

import (
	"provider-integrity-go/internal/store"
)

// CanonicalProvider accepts callbacks already in the provider-neutral
// CanonicalPayload shape. It backs internal tooling and tests.
type CanonicalProvider struct {
	name         string
	matchPayload bool
}

func NewCanonicalProvider(name string, matchPayload bool) *CanonicalProvider {
	return &CanonicalProvider{name: name, matchPayload: matchPayload}
}

func (p *CanonicalProvider) Name() string { return p.name }

func (p *CanonicalProvider) Decode(eventType string, raw []byte) (Event, error) {
	return DecodeCanonical(eventType, raw)
}

func (p *CanonicalProvider) RedeliveryCheck() store.RedeliveryCheck {
	if p.matchPayload {
		return store.MatchPayload
	}
	return nil
}
