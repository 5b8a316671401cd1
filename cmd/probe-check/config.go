package main

import (
	"memprobe/internal/check"
	"memprobe/internal/sandbox/engine"
	"memprobe/internal/sandbox/profile"
	"memprobe/internal/sandbox/spec"
	appErr "memprobe/pkg/errors"
	"memprobe/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultCgroupRoot  = "/sys/fs/cgroup/memprobe"
	defaultHelperPath  = "sandbox-init"
	defaultFixturePath = "memprobe"
	defaultProfileName = "probe"
	defaultCPUTimeMs   = 1000
	defaultWallTimeMs  = 3000
)

// AppConfig holds probe-check config.
type AppConfig struct {
	Logger    logger.Config     `yaml:"logger"`
	Sandbox   engine.Config     `yaml:"sandbox"`
	Check     check.Config      `yaml:"check"`
	Profiles  []profile.Profile `yaml:"profiles"`
	Scenarios []check.Scenario  `yaml:"scenarios"`
}

// loadAppConfig loads one or more config files. Each later file is overlaid
// on the earlier ones: mappings merge key by key, every other value replaces.
func loadAppConfig(paths ...string) (*AppConfig, error) {
	if len(paths) == 0 {
		return nil, appErr.New(appErr.ConfigLoadFailed).WithMessage("no config file given")
	}
	merged, err := loadLayered(paths)
	if err != nil {
		return nil, err
	}
	data, err := yaml.Marshal(merged)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ConfigInvalid, "encode merged config failed")
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, appErr.Wrapf(err, appErr.ConfigInvalid, "parse config file failed")
	}

	applySandboxDefaults(&cfg.Sandbox)
	if len(cfg.Profiles) == 0 {
		cfg.Profiles = []profile.Profile{defaultProfile()}
	}
	if cfg.Check.Profile == "" {
		cfg.Check.Profile = cfg.Profiles[0].Name
	}
	if cfg.Check.BinaryPath == "" {
		cfg.Check.BinaryPath = defaultFixturePath
	}
	if cfg.Check.DefaultMemory == "" {
		cfg.Check.DefaultMemory = spec.MemoryRlimitData
	}
	if !cfg.Check.DefaultMemory.Valid() {
		return nil, appErr.Newf(appErr.ConfigInvalid, "unsupported default memory enforcement: %s", cfg.Check.DefaultMemory)
	}
	if err := cfg.Check.Footprints.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applySandboxDefaults(cfg *engine.Config) {
	if cfg.CgroupRoot == "" {
		cfg.CgroupRoot = defaultCgroupRoot
	}
	if cfg.HelperPath == "" {
		cfg.HelperPath = defaultHelperPath
	}
}

// defaultProfile leaves PIDs unset: both pids.max and RLIMIT_NPROC count the
// runtime threads of a Go fixture.
func defaultProfile() profile.Profile {
	return profile.Profile{
		Name: defaultProfileName,
		DefaultLimits: spec.ResourceLimit{
			CPUTimeMs:  defaultCPUTimeMs,
			WallTimeMs: defaultWallTimeMs,
			OutputMB:   1,
		},
	}
}
