package engine

import (
	"path/filepath"

	"memprobe/internal/sandbox/spec"
	appErr "memprobe/pkg/errors"
)

// InitFailureExitCode is the status sandbox-init exits with when it cannot
// set up or exec the command.
const InitFailureExitCode = spec.InitFailureExitCode

// ProfileResolver resolves a profile name into an isolation profile.
type ProfileResolver interface {
	Resolve(profile string) (spec.IsolationProfile, error)
}

// Config controls sandbox engine behavior.
type Config struct {
	CgroupRoot           string `yaml:"cgroupRoot"`
	SeccompDir           string `yaml:"seccompDir"`
	HelperPath           string `yaml:"helperPath"`
	StdoutStderrMaxBytes int64  `yaml:"stdoutStderrMaxBytes"`
	EnableSeccomp        bool   `yaml:"enableSeccomp"`
	EnableCgroup         bool   `yaml:"enableCgroup"`
	EnableNamespaces     bool   `yaml:"enableNamespaces"`
}

func validateRunSpec(runSpec spec.RunSpec) error {
	if runSpec.RunID == "" {
		return appErr.ValidationError("run_id", "required")
	}
	if runSpec.CaseID == "" {
		return appErr.ValidationError("case_id", "required")
	}
	if runSpec.WorkDir == "" {
		return appErr.ValidationError("work_dir", "required")
	}
	if len(runSpec.Cmd) == 0 {
		return appErr.ValidationError("cmd", "required")
	}
	if runSpec.Profile == "" {
		return appErr.ValidationError("profile", "required")
	}
	if !runSpec.Memory.Valid() {
		return appErr.Newf(appErr.InvalidValue, "unsupported memory enforcement: %s", runSpec.Memory)
	}
	return nil
}

func resolveSeccompPath(dir string, iso spec.IsolationProfile) spec.IsolationProfile {
	if dir != "" && iso.SeccompProfile != "" && !filepath.IsAbs(iso.SeccompProfile) {
		iso.SeccompProfile = filepath.Join(dir, iso.SeccompProfile)
	}
	return iso
}
