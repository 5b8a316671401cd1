// Package profile resolves named sandbox profiles into isolation settings and
// default limits.
package profile

import (
	"memprobe/internal/sandbox/spec"
	appErr "memprobe/pkg/errors"
)

// Profile is one named sandbox configuration.
type Profile struct {
	Name           string             `yaml:"name"`
	SeccompProfile string             `yaml:"seccompProfile"`
	DisableNetwork bool               `yaml:"disableNetwork"`
	DefaultLimits  spec.ResourceLimit `yaml:"defaultLimits"`
}

// LocalRepository serves profiles loaded from config.
type LocalRepository struct {
	profiles map[string]Profile
}

// NewLocalRepository creates a repository from a config list.
// Entries without a name are skipped; later entries win on duplicates.
func NewLocalRepository(profiles []Profile) *LocalRepository {
	profileMap := make(map[string]Profile, len(profiles))
	for _, prof := range profiles {
		if prof.Name == "" {
			continue
		}
		profileMap[prof.Name] = prof
	}
	return &LocalRepository{profiles: profileMap}
}

// Get returns the named profile.
func (r *LocalRepository) Get(name string) (Profile, error) {
	if name == "" {
		return Profile{}, appErr.ValidationError("profile", "required")
	}
	prof, ok := r.profiles[name]
	if !ok {
		return Profile{}, appErr.Newf(appErr.ProfileNotFound, "profile %s not found", name)
	}
	return prof, nil
}

// Resolve maps a profile name to isolation settings.
func (r *LocalRepository) Resolve(name string) (spec.IsolationProfile, error) {
	prof, err := r.Get(name)
	if err != nil {
		return spec.IsolationProfile{}, err
	}
	return spec.IsolationProfile{
		SeccompProfile: prof.SeccompProfile,
		DisableNetwork: prof.DisableNetwork,
	}, nil
}
