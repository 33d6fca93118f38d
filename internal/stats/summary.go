package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FormatSummary formats a snapshot for display at program exit.
func FormatSummary(s Snapshot) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════\n")
	b.WriteString("                     go-toolrun Session Summary\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════\n\n")

	fmt.Fprintf(&b, "Session Duration:   %s\n", FormatDuration(s.Elapsed))
	fmt.Fprintf(&b, "Runs:               %d\n", s.Total)
	if s.Total == 0 {
		return b.String()
	}

	fmt.Fprintf(&b, "  Success:          %d\n", s.Success)
	fmt.Fprintf(&b, "  User cancelled:   %d\n", s.Cancelled)
	fmt.Fprintf(&b, "  Failed:           %d", s.Failed)
	if s.Denied > 0 {
		fmt.Fprintf(&b, " (%d elevation declined)", s.Denied)
	}
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Runtime p50:        %s\n", FormatMs(s.RuntimeP50))
	fmt.Fprintf(&b, "Runtime p95:        %s\n", FormatMs(s.RuntimeP95))
	fmt.Fprintf(&b, "Runtime max:        %s\n", FormatMs(s.RuntimeMax))
	fmt.Fprintf(&b, "Output:             %s\n", FormatBytes(s.OutputBytes))

	if len(s.ExitCodes) > 0 {
		b.WriteString("\nExit codes:\n")
		codes := make([]int, 0, len(s.ExitCodes))
		for code := range s.ExitCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		for _, code := range codes {
			fmt.Fprintf(&b, "  %3d %-22s %d\n", code, exitCodeLabel(code), s.ExitCodes[code])
		}
	}

	return b.String()
}

// exitCodeLabel returns a short description of common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(success)"
	case 1:
		return "(error)"
	case 126:
		return "(not authorized)"
	case 127:
		return "(not found/dismissed)"
	case 130:
		return "(interrupted)"
	case 143:
		return "(SIGTERM)"
	default:
		if code > 128 {
			return fmt.Sprintf("(signal %d)", code-128)
		}
		return ""
	}
}

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatBytes formats a byte count with decimal units.
func FormatBytes(n int64) string {
	switch {
	case n >= 1_000_000_000:
		return fmt.Sprintf("%.2f GB", float64(n)/1_000_000_000)
	case n >= 1_000_000:
		return fmt.Sprintf("%.2f MB", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.2f KB", float64(n)/1_000)
	}
	return fmt.Sprintf("%d B", n)
}

// FormatMs formats a duration in milliseconds, or seconds above 10s.
func FormatMs(d time.Duration) string {
	if d >= 10*time.Second {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dms", d.Milliseconds())
}
