package session

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/peerchat/chat-client/internal/chat"
)

// ProfileFetcher loads one user profile.
type ProfileFetcher func(ctx context.Context, userID string) (chat.Profile, error)

// ProfileCache keeps recently seen user profiles so opening a conversation by
// user id does not refetch known users.
type ProfileCache struct {
	cache *lru.Cache
	fetch ProfileFetcher
}

// NewProfileCache creates a cache holding up to size profiles.
func NewProfileCache(size int, fetch ProfileFetcher) (*ProfileCache, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("session: profile cache: %w", err)
	}
	return &ProfileCache{cache: cache, fetch: fetch}, nil
}

// Get returns the cached profile or fetches and caches it.
func (p *ProfileCache) Get(ctx context.Context, userID string) (chat.Profile, error) {
	if v, ok := p.cache.Get(userID); ok {
		return v.(chat.Profile), nil
	}
	prof, err := p.fetch(ctx, userID)
	if err != nil {
		return chat.Profile{}, err
	}
	p.cache.Add(userID, prof)
	return prof, nil
}

// Put records profiles seen elsewhere, e.g. in the discovery list.
func (p *ProfileCache) Put(profiles ...chat.Profile) {
	for _, prof := range profiles {
		if prof.UserID != "" {
			p.cache.Add(prof.UserID, prof)
		}
	}
}

// Forget drops one profile.
func (p *ProfileCache) Forget(userID string) {
	p.cache.Remove(userID)
}

// Purge drops everything.
func (p *ProfileCache) Purge() {
	p.cache.Purge()
}
