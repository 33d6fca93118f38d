package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-toolrun/internal/stats"
)

// View renders the console.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	sections := []string{
		m.renderHeader(),
		m.renderStatus(),
		outputBoxStyle.Render(m.viewport.View()),
		m.renderFooter(),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	title := m.title
	if title == "" {
		title = "go-toolrun"
	}
	return headerStyle.Render(title) + " " + dimStyle.Render(m.commandLine())
}

func (m Model) renderStatus() string {
	var state string
	switch m.phase {
	case PhaseIdle:
		state = statusInfo.Render("● idle")
	case PhaseStarting:
		state = statusInfo.Render("● starting")
	case PhaseRunning:
		pid := ""
		if m.handle != nil {
			pid = m.handle.PID()
		}
		state = statusWarning.Render(fmt.Sprintf("● running pid %s", pid)) +
			dimStyle.Render(" "+stats.FormatDuration(time.Since(m.startedAt)))
	case PhaseTerminated:
		state = OutcomeStyle(m.outcome).Render("● " + m.outcome.Classification.String())
	case PhaseSpawnFailed:
		state = statusError.Render("● spawn failed")
		if m.spawnErr != nil {
			state += dimStyle.Render(" " + m.spawnErr.Error())
		}
	}

	lines := []string{RenderKeyValue("Status", "") + state}

	if m.phase != PhaseIdle {
		r := m.rate.Rates()
		lines = append(lines, RenderKeyValue("Output", fmt.Sprintf("%s  %s/s",
			stats.FormatBytes(r.Total), stats.FormatBytes(int64(r.Per1s)))))
	}

	if m.runStats != nil {
		snap := m.runStats.Snapshot()
		if snap.Total > 0 {
			lines = append(lines, RenderKeyValue("Runs", fmt.Sprintf("%d  p50 %s  p95 %s",
				snap.Total, stats.FormatMs(snap.RuntimeP50), stats.FormatMs(snap.RuntimeP95))))
		}
	}

	if m.notice != "" {
		lines = append(lines, subtitleStyle.Render(m.notice))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderFooter() string {
	return footerStyle.Render(m.help.View(m.keys.forState(m.Running(), m.CanSave())))
}
