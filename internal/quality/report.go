package quality

import (
	"fmt"
	"strings"
	"time"
)

// CheckResult is the outcome of one expectation.
type CheckResult struct {
	Name     string        `json:"name"`
	Kind     string        `json:"kind"`
	Relation string        `json:"relation"`
	Passed   bool          `json:"passed"`
	Detail   string        `json:"detail"`
	Duration time.Duration `json:"duration_ns"`
	// Err is set when the expectation could not be evaluated.
	Err error `json:"-"`
}

func (r CheckResult) String() string {
	status := "PASS"
	if !r.Passed {
		status = "FAIL"
	}
	return fmt.Sprintf("[%s] %s on %s: %s", status, r.Name, r.Relation, r.Detail)
}

// Report aggregates a suite run. Results keep declaration order.
type Report struct {
	Suite   string        `json:"suite"`
	RunAt   time.Time     `json:"run_at"`
	Results []CheckResult `json:"results"`
	Success bool          `json:"success"`
}

func newReport(suite string, runAt time.Time, results []CheckResult) *Report {
	success := true
	for _, r := range results {
		success = success && r.Passed
	}
	return &Report{Suite: suite, RunAt: runAt, Results: results, Success: success}
}

func (r *Report) Total() int { return len(r.Results) }

func (r *Report) Passed() int {
	n := 0
	for _, res := range r.Results {
		if res.Passed {
			n++
		}
	}
	return n
}

func (r *Report) Failed() int { return r.Total() - r.Passed() }

// Failures returns the failed results in declaration order.
func (r *Report) Failures() []CheckResult {
	var out []CheckResult
	for _, res := range r.Results {
		if !res.Passed {
			out = append(out, res)
		}
	}
	return out
}

// Summary renders the report for operators and scheduler logs.
func (r *Report) Summary() string {
	rule := strings.Repeat("=", 60)
	var b strings.Builder
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Data Quality Suite: %s\n", r.Suite)
	fmt.Fprintf(&b, "Run at: %s\n", r.RunAt.UTC().Format(time.RFC3339))
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Total: %d | Passed: %d | Failed: %d\n", r.Total(), r.Passed(), r.Failed())
	fmt.Fprintln(&b, strings.Repeat("-", 60))
	for _, res := range r.Results {
		icon := "[OK]"
		if !res.Passed {
			icon = "[X]"
		}
		fmt.Fprintf(&b, "%s %s: %s\n", icon, res.Name, res.Relation)
		fmt.Fprintf(&b, "    %s\n", res.Detail)
	}
	fmt.Fprintln(&b, rule)
	outcome := "PASSED"
	if !r.Success {
		outcome = "FAILED"
	}
	fmt.Fprintf(&b, "Suite Result: %s\n", outcome)
	b.WriteString(rule)
	return b.String()
}
