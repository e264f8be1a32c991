package memory

import (
	"context"
	"strings"
	"sync"

	domainprofile "github.com/gtpankaj4/campusmesh-sub001/internal/domain/profile"
)

// ProfileRepository keeps profiles in memory. Dev and test backend for the
// document store.
type ProfileRepository struct {
	mu    sync.RWMutex
	items map[string]*domainprofile.Profile
}

func NewProfileRepository() *ProfileRepository {
	return &ProfileRepository{items: make(map[string]*domainprofile.Profile)}
}

func (r *ProfileRepository) ByID(ctx context.Context, id string) (*domainprofile.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.items[strings.TrimSpace(id)]; ok {
		clone := *p
		return &clone, nil
	}
	return nil, domainprofile.ErrNotFound
}

func (r *ProfileRepository) Save(ctx context.Context, p *domainprofile.Profile) error {
	if p == nil || strings.TrimSpace(p.ID) == "" {
		return domainprofile.ErrIDRequired
	}
	clone := *p
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[clone.ID] = &clone
	return nil
}

var _ domainprofile.Repository = (*ProfileRepository)(nil)
