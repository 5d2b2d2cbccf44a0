package verify

import (
	"fmt"
	"io"
	"strings"

	"github.com/sarchlab/zax/diag"
)

// FunctionSummary records the stack verification outcome of one function.
type FunctionSummary struct {
	Name    string
	Returns int
	Exit    Depth
	// Reachable is false when every path ends in a ret or jump and nothing
	// falls off the end of the body.
	Reachable bool
	Issues    []*diag.Diagnostic
}

// OK reports whether the function verified cleanly.
func (s FunctionSummary) OK() bool {
	return len(s.Issues) == 0
}

// Report collects function summaries in compilation order.
type Report struct {
	Functions []FunctionSummary
}

// Add appends a summary.
func (r *Report) Add(s FunctionSummary) {
	r.Functions = append(r.Functions, s)
}

// IssueCount returns the total number of stack issues.
func (r *Report) IssueCount() int {
	n := 0
	for _, f := range r.Functions {
		n += len(f.Issues)
	}
	return n
}

// WriteReport writes a formatted report to a writer.
func (r *Report) WriteReport(w io.Writer) {
	separator := strings.Repeat("=", 60)
	dash := strings.Repeat("-", 60)

	fmt.Fprintln(w, separator)
	fmt.Fprintln(w, "STACK VERIFICATION REPORT")
	fmt.Fprintln(w, separator)

	for _, f := range r.Functions {
		status := "ok"
		if !f.OK() {
			status = fmt.Sprintf("%d issue(s)", len(f.Issues))
		}

		exit := "unreachable"
		if f.Reachable {
			exit = f.Exit.String()
		}

		fmt.Fprintf(w, "%-24s rets=%-3d exit=%-12s %s\n", f.Name, f.Returns, exit, status)
		for _, issue := range f.Issues {
			fmt.Fprintf(w, "    %s\n", issue.Message)
		}
	}

	fmt.Fprintln(w, dash)
	if n := r.IssueCount(); n == 0 {
		fmt.Fprintf(w, "All %d function(s) balanced.\n", len(r.Functions))
	} else {
		fmt.Fprintf(w, "%d stack issue(s) in %d function(s).\n", n, len(r.Functions))
	}
}
