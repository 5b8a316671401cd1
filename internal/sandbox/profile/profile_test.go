package profile

import (
	"testing"

	"memprobe/internal/sandbox/spec"
	appErr "memprobe/pkg/errors"
)

func TestLocalRepository(t *testing.T) {
	repo := NewLocalRepository([]Profile{
		{Name: ""},
		{Name: "probe", SeccompProfile: "probe.json", DisableNetwork: true, DefaultLimits: spec.ResourceLimit{WallTimeMs: 2000}},
	})

	iso, err := repo.Resolve("probe")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if iso.SeccompProfile != "probe.json" || !iso.DisableNetwork {
		t.Fatalf("unexpected isolation: %+v", iso)
	}

	prof, err := repo.Get("probe")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if prof.DefaultLimits.WallTimeMs != 2000 {
		t.Fatalf("unexpected default limits: %+v", prof.DefaultLimits)
	}

	if _, err := repo.Resolve("missing"); !appErr.Is(err, appErr.ProfileNotFound) {
		t.Fatalf("expected ProfileNotFound, got %v", err)
	}
	if _, err := repo.Get(""); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
}
