// Package check runs the fixture across memory ceilings and compares each
// outcome with what the fixture is expected to report.
package check

import (
	"strings"

	"memprobe/internal/probe"
	"memprobe/internal/sandbox/result"
	"memprobe/internal/sandbox/spec"
	appErr "memprobe/pkg/errors"
)

// Expect names the outcome a scenario is expected to produce.
type Expect string

const (
	// ExpectAuto derives the outcome from the memory ceiling and, for rlimit
	// ceilings, the fixture's calibrated footprint.
	ExpectAuto   Expect = ""
	ExpectSum    Expect = "sum"
	ExpectDenied Expect = "denied"
	// ExpectNoStart is a ceiling below what the fixture's runtime needs to
	// reach main; the runtime aborts before the probe.
	ExpectNoStart Expect = "no-start"
)

// runtimeFatalExit is the status the Go runtime exits with on a fatal error.
const runtimeFatalExit = 2

// Footprint is the fixture's measured behaviour under one rlimit mode. The
// fixture's own runtime counts against rlimit ceilings, so the probe is only
// denied in the window [StartMB, SumMB).
type Footprint struct {
	// StartMB is the lowest ceiling at which the fixture reaches the probe.
	StartMB int64 `yaml:"startMB" json:"startMB"`
	// SumMB is the lowest ceiling at which the probe succeeds. Zero means
	// StartMB plus the probe buffer.
	SumMB int64 `yaml:"sumMB" json:"sumMB"`
}

func (f Footprint) sumMB() int64 {
	if f.SumMB > 0 {
		return f.SumMB
	}
	return f.StartMB + probe.BufferSize/(1024*1024)
}

// Footprints holds a calibrated Footprint per rlimit enforcement mode.
type Footprints map[spec.MemoryEnforcement]Footprint

// Validate checks that every entry names an rlimit mode and has an ordered window.
func (fps Footprints) Validate() error {
	for mode, fp := range fps {
		if !mode.IsRlimit() {
			return appErr.Newf(appErr.ConfigInvalid, "footprint for %q: only rlimit modes have a footprint", mode)
		}
		if fp.StartMB <= 0 {
			return appErr.Newf(appErr.ConfigInvalid, "footprint for %s: startMB must be positive", mode)
		}
		if fp.SumMB != 0 && fp.SumMB < fp.StartMB {
			return appErr.Newf(appErr.ConfigInvalid, "footprint for %s: sumMB must not be below startMB", mode)
		}
	}
	return nil
}

// Scenario is one fixture execution under a given memory ceiling.
type Scenario struct {
	Name       string                 `yaml:"name" json:"name"`
	Input      string                 `yaml:"input" json:"input"`
	MemoryMB   int64                  `yaml:"memoryMB" json:"memoryMB"`
	Memory     spec.MemoryEnforcement `yaml:"memory" json:"memory"`
	WallTimeMs int64                  `yaml:"wallTimeMs" json:"wallTimeMs"`
	Expect     Expect                 `yaml:"expect" json:"expect"`
}

// Expectation is the verdict and stdout a scenario must produce.
type Expectation struct {
	Scenario string         `json:"scenario"`
	Expect   Expect         `json:"expect"`
	Verdict  result.Verdict `json:"verdict"`
	Stdout   string         `json:"stdout"`
	ExitCode int            `json:"exitCode"`
}

// Plan computes the expectation for s using the fixture's own parsing and
// formatting. An rlimit ceiling with ExpectAuto needs a footprint for its mode.
func Plan(s Scenario, fps Footprints) (Expectation, error) {
	if err := validateScenario(s); err != nil {
		return Expectation{}, err
	}

	expect := s.Expect
	if expect == ExpectAuto {
		var err error
		if expect, err = autoExpect(s, fps); err != nil {
			return Expectation{}, err
		}
	}

	switch expect {
	case ExpectDenied:
		return Expectation{
			Scenario: s.Name,
			Expect:   expect,
			Verdict:  result.VerdictAD,
			Stdout:   probe.DeniedOutput,
			ExitCode: probe.ExitDenied,
		}, nil
	case ExpectNoStart:
		return Expectation{
			Scenario: s.Name,
			Expect:   expect,
			Verdict:  result.VerdictRE,
			ExitCode: runtimeFatalExit,
		}, nil
	}

	// Malformed input still sums whatever was parsed.
	ops, _ := probe.ReadOperands(strings.NewReader(s.Input))
	return Expectation{
		Scenario: s.Name,
		Expect:   expect,
		Verdict:  result.VerdictAC,
		Stdout:   probe.FormatSum(probe.Sum(ops)),
		ExitCode: probe.ExitOK,
	}, nil
}

// autoExpect places an rlimit ceiling relative to the fixture's footprint.
// Cgroup ceilings never deny an untouched mapping.
func autoExpect(s Scenario, fps Footprints) (Expect, error) {
	if !s.Memory.IsRlimit() || s.MemoryMB <= 0 {
		return ExpectSum, nil
	}
	fp, ok := fps[s.Memory]
	if !ok || fp.StartMB <= 0 {
		return "", appErr.Newf(appErr.ScenarioInvalid,
			"scenario %s: %s ceiling needs an explicit expect or a calibrated footprint (probe-check calibrate)", s.Name, s.Memory)
	}
	switch {
	case s.MemoryMB < fp.StartMB:
		return ExpectNoStart, nil
	case s.MemoryMB < fp.sumMB():
		return ExpectDenied, nil
	}
	return ExpectSum, nil
}

func validateScenario(s Scenario) error {
	if strings.TrimSpace(s.Name) == "" {
		return appErr.New(appErr.ScenarioInvalid).WithMessage("scenario name is required")
	}
	if strings.ContainsAny(s.Name, `/\`) {
		return appErr.Newf(appErr.ScenarioInvalid, "scenario %s: name must not contain path separators", s.Name)
	}
	if !s.Memory.Valid() {
		return appErr.Newf(appErr.ScenarioInvalid, "scenario %s: unsupported memory enforcement %q", s.Name, s.Memory)
	}
	if s.MemoryMB < 0 {
		return appErr.Newf(appErr.ScenarioInvalid, "scenario %s: memoryMB must not be negative", s.Name)
	}
	if s.WallTimeMs < 0 {
		return appErr.Newf(appErr.ScenarioInvalid, "scenario %s: wallTimeMs must not be negative", s.Name)
	}
	switch s.Expect {
	case ExpectAuto, ExpectSum, ExpectDenied, ExpectNoStart:
	default:
		return appErr.Newf(appErr.ScenarioInvalid, "scenario %s: unknown expectation %q", s.Name, s.Expect)
	}
	return nil
}

// PlanAll fills in defaultMemory where a scenario leaves it empty and plans
// every scenario. Names must be unique.
func PlanAll(scenarios []Scenario, defaultMemory spec.MemoryEnforcement, fps Footprints) ([]Scenario, []Expectation, error) {
	if err := fps.Validate(); err != nil {
		return nil, nil, err
	}
	if len(scenarios) == 0 {
		return nil, nil, appErr.New(appErr.ScenarioInvalid).WithMessage("no scenarios configured")
	}
	resolved := make([]Scenario, len(scenarios))
	plans := make([]Expectation, len(scenarios))
	seen := make(map[string]struct{}, len(scenarios))
	for i, s := range scenarios {
		if s.Memory == "" {
			s.Memory = defaultMemory
		}
		plan, err := Plan(s, fps)
		if err != nil {
			return nil, nil, err
		}
		if _, dup := seen[s.Name]; dup {
			return nil, nil, appErr.Newf(appErr.ScenarioInvalid, "duplicate scenario name %s", s.Name)
		}
		seen[s.Name] = struct{}{}
		resolved[i] = s
		plans[i] = plan
	}
	return resolved, plans, nil
}
