// Package result defines sandbox execution results and verdict mapping.
package result

// Verdict represents the final outcome of one probe case.
type Verdict string

const (
	VerdictAC  Verdict = "AC"
	VerdictWA  Verdict = "WA"
	VerdictAD  Verdict = "AD" // probe reported its allocation as denied
	VerdictTLE Verdict = "TLE"
	VerdictMLE Verdict = "MLE"
	VerdictOLE Verdict = "OLE"
	VerdictRE  Verdict = "RE"
	VerdictSE  Verdict = "SE"
)

// RunResult captures raw sandbox execution data.
type RunResult struct {
	ExitCode   int
	TimeMs     int64
	WallTimeMs int64
	MemoryKB   int64
	OutputKB   int64
	Stdout     string
	Stderr     string
	OomKilled  bool
	// TimedOut is set when the wall or CPU limit was hit. ExitCode is -1 then.
	TimedOut bool
	// Signal names the terminating signal, empty on a normal exit.
	Signal string
}

// CaseResult contains per-case execution outcomes.
type CaseResult struct {
	CaseID         string
	Verdict        Verdict
	TimeMs         int64
	WallTimeMs     int64
	MemoryKB       int64
	OutputKB       int64
	ExitCode       int
	RuntimeLogPath string
	Stdout         string
	Stderr         string
}
