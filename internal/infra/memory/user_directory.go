package memory

import (
	"context"
	"sync"

	"challenge-engine/internal/domain"
)

// StaticDirectory is a map-backed app.UserDirectory (useful for tests/demos).
type StaticDirectory struct {
	mu       sync.RWMutex
	profiles map[string]domain.UserProfile
}

func NewStaticDirectory(profiles map[string]domain.UserProfile) *StaticDirectory {
	if profiles == nil {
		profiles = make(map[string]domain.UserProfile)
	}
	return &StaticDirectory{profiles: profiles}
}

func (d *StaticDirectory) Lookup(_ context.Context, userID string) (domain.UserProfile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if profile, ok := d.profiles[userID]; ok {
		return profile, nil
	}
	return domain.UserProfile{}, domain.NewError(domain.ErrNotFound, "user", "user not found")
}

// Put adds or replaces a profile.
func (d *StaticDirectory) Put(profile domain.UserProfile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[profile.UserID] = profile
}
