// Package preflight checks that a tool can run before it is spawned.
package preflight

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/randomizedcoder/go-toolrun/internal/catalog"
)

// minFileDescriptors covers the child's three standard streams, the
// pipes the runner holds, and headroom for the metrics server.
const minFileDescriptors = 64

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Missing returns the names of failed dependency checks.
func (r *Result) Missing() []string {
	var out []string
	for _, c := range r.Checks {
		if !c.Passed && strings.HasPrefix(c.Name, "dependency:") {
			out = append(out, strings.TrimPrefix(c.Name, "dependency:"))
		}
	}
	return out
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// CommandsAvailable reports whether every name resolves on PATH.
// An empty list is trivially available.
func CommandsAvailable(names []string) bool {
	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			return false
		}
	}
	return true
}

// RunAll executes every check relevant to tool. elevator names the
// privilege wrapper and is only checked for elevated tools.
func RunAll(tool catalog.Tool, elevator string) *Result {
	result := &Result{
		Checks: make([]Check, 0, len(tool.Dependencies)+3),
		Passed: true,
	}
	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	for _, dep := range tool.Dependencies {
		add(checkDependency(dep))
	}

	if tool.Elevated {
		add(checkElevator(elevator))
	}

	add(checkFileDescriptors())

	// Warning only
	add(checkProcessLimit())

	return result
}

// checkDependency verifies a command resolves on PATH.
func checkDependency(name string) Check {
	path, err := exec.LookPath(name)
	if err != nil {
		return Check{
			Name:    "dependency:" + name,
			Passed:  false,
			Message: "not found on PATH",
		}
	}
	return Check{
		Name:    "dependency:" + name,
		Passed:  true,
		Message: "found at " + path,
	}
}

// checkElevator verifies the privilege wrapper is installed.
func checkElevator(name string) Check {
	if name == "" {
		name = "pkexec"
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return Check{
			Name:    "elevator",
			Passed:  false,
			Message: fmt.Sprintf("%s not found on PATH", name),
		}
	}
	msg := "found at " + path
	if os.Geteuid() == 0 {
		msg += " (already root)"
	}
	return Check{
		Name:    "elevator",
		Passed:  true,
		Message: msg,
	}
}

// checkFileDescriptors verifies the open-file limit leaves room for the
// child's pipes.
func checkFileDescriptors() Check {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to check: %v", err),
		}
	}

	actual := int(limit.Cur)
	if limit.Cur > 1<<30 {
		actual = 1 << 30
	}
	return Check{
		Name:     "file_descriptors",
		Required: minFileDescriptors,
		Actual:   actual,
		Passed:   actual >= minFileDescriptors,
		Message:  fmt.Sprintf("ulimit -n %d", actual),
	}
}

// checkProcessLimit warns when few process slots remain. Tools such as
// nmap fork helpers of their own.
func checkProcessLimit() Check {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NPROC, &limit); err != nil {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to check (non-Linux or restricted)",
		}
	}

	if limit.Cur == unix.RLIM_INFINITY {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Message: "unlimited",
		}
	}

	const recommended = 256
	actual := int(limit.Cur)
	return Check{
		Name:    "process_limit",
		Passed:  true, // Don't fail on this
		Warning: actual < recommended,
		Message: fmt.Sprintf("ulimit -u %d (recommend %d)", actual, recommended),
	}
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch {
	case strings.HasPrefix(name, "dependency:"):
		return fmt.Sprintf("install %s (apt install %s)", strings.TrimPrefix(name, "dependency:"), strings.TrimPrefix(name, "dependency:"))
	case name == "elevator":
		return "install polkit (apt install pkexec) or use --elevator sudo"
	case name == "file_descriptors":
		return "ulimit -n 1024 (or edit /etc/security/limits.conf)"
	default:
		return "see documentation"
	}
}
