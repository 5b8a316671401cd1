package check

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"memprobe/internal/sandbox/result"
	"memprobe/internal/sandbox/spec"

	"github.com/fatih/color"
)

// CaseReport is the graded outcome of one scenario.
type CaseReport struct {
	Name       string                 `json:"name"`
	RunID      string                 `json:"runId"`
	Memory     spec.MemoryEnforcement `json:"memory"`
	MemoryMB   int64                  `json:"memoryMB"`
	Expected   result.Verdict         `json:"expected"`
	Verdict    result.Verdict         `json:"verdict"`
	Passed     bool                   `json:"passed"`
	TimeMs     int64                  `json:"timeMs"`
	WallTimeMs int64                  `json:"wallTimeMs"`
	MemoryKB   int64                  `json:"memoryKB"`
	ExitCode   int                    `json:"exitCode"`
	Stdout     string                 `json:"stdout"`
	// Detail explains TLE, MLE, OLE and RE verdicts.
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Report aggregates every case of one checker run.
type Report struct {
	Cases  []CaseReport `json:"cases"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	// Errors counts cases the sandbox could not run at all.
	Errors int `json:"errors"`
}

func newReport(cases []CaseReport) Report {
	report := Report{Cases: cases, Total: len(cases)}
	for _, c := range cases {
		switch {
		case c.Error != "":
			report.Errors++
		case c.Passed:
			report.Passed++
		default:
			report.Failed++
		}
	}
	return report
}

// OK reports whether every case passed.
func (r Report) OK() bool {
	return r.Total > 0 && r.Passed == r.Total
}

// WriteJSON writes the report as indented JSON.
func (r Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText writes one aligned row per case followed by a summary line.
// Status colors follow color.NoColor.
func (r Report) WriteText(w io.Writer) error {
	pass := color.New(color.FgGreen, color.Bold).SprintFunc()
	fail := color.New(color.FgRed, color.Bold).SprintFunc()

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "SCENARIO\tMEMORY\tEXPECTED\tVERDICT\tTIME\tPEAK\tSTDOUT\tSTATUS"); err != nil {
		return err
	}
	for _, c := range r.Cases {
		status := pass("PASS")
		if c.Error != "" {
			status = fail("ERROR") + " " + c.Error
		} else if !c.Passed {
			status = fail("FAIL")
			if c.Detail != "" {
				status += " " + c.Detail
			}
		}
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%dms\t%dKB\t%q\t%s\n",
			c.Name, memoryLabel(c), c.Expected, c.Verdict, c.TimeMs, c.MemoryKB,
			strings.TrimSuffix(c.Stdout, "\n"), status); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d scenarios: %d passed, %d failed, %d errors\n", r.Total, r.Passed, r.Failed, r.Errors)
	return err
}

func memoryLabel(c CaseReport) string {
	mode := string(c.Memory)
	if mode == "" {
		mode = string(spec.MemoryCgroup)
	}
	if c.MemoryMB <= 0 {
		return mode + ":unlimited"
	}
	return fmt.Sprintf("%s:%dMB", mode, c.MemoryMB)
}

// WritePlan writes the expectations computed for scenarios without running them.
func WritePlan(w io.Writer, plans []Expectation) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "SCENARIO\tEXPECT\tVERDICT\tEXIT\tSTDOUT"); err != nil {
		return err
	}
	for _, p := range plans {
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%q\n",
			p.Scenario, p.Expect, p.Verdict, p.ExitCode, strings.TrimSuffix(p.Stdout, "\n")); err != nil {
			return err
		}
	}
	return tw.Flush()
}
