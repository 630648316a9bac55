package tui

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gauntletci/gauntlet/internal/domain"
)

func clampString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))

	n := 0
	for _, r := range s {
		if n >= maxLen {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String() + "…"
}

func renderRunSummary(t Theme, run domain.RunArtifact, id string, err error) string {
	var b strings.Builder

	b.WriteString(t.Title.Render(run.PipelineName))
	b.WriteString("\n\n")

	if err != nil {
		b.WriteString(t.Fail.Render("run error: " + err.Error()))
		b.WriteString("\n\n")
	}

	if id != "" {
		b.WriteString("Run ID: ")
		b.WriteString(id)
		b.WriteString("\n")
	}
	if !run.StartedAt.IsZero() && !run.FinishedAt.IsZero() {
		b.WriteString("Duration: ")
		b.WriteString(run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String())
		b.WriteString("\n")
	}
	b.WriteString("\n")

	for _, job := range run.Jobs {
		mark := t.Pass.Render("PASS")
		if job.Status != domain.JobPassed {
			mark = t.Fail.Render(strings.ToUpper(string(job.Status)))
		}
		b.WriteString(fmt.Sprintf("[%s] %s\n", mark, job.Name))

		for _, line := range renderJobDetails(job) {
			b.WriteString("  ")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	fails := run.FailedJobs()
	b.WriteString("\n")
	if fails == 0 {
		b.WriteString(t.Pass.Render(fmt.Sprintf("%d job(s) passed", len(run.Jobs))))
	} else {
		b.WriteString(t.Fail.Render(fmt.Sprintf("%d of %d job(s) failed", fails, len(run.Jobs))))
	}

	return b.String()
}

// renderJobDetails lists failing commands, checks and uploads; passing
// details stay collapsed so the summary scans well.
func renderJobDetails(job domain.JobResult) []string {
	var lines []string

	for _, phase := range job.Phases {
		for _, c := range phase.Commands {
			if !c.Failed() {
				continue
			}
			detail := fmt.Sprintf("exit %d", c.ExitCode)
			if c.Error != nil {
				detail = fmt.Sprintf("%s (%s)", c.Error.Message, c.Error.Kind)
			}
			lines = append(lines, fmt.Sprintf("✗ %s: %s — %s",
				phase.Phase, clampString(string(c.Command), 60), detail))
		}
	}

	for _, c := range job.Checks {
		if c.Passed {
			continue
		}
		lines = append(lines, fmt.Sprintf("✗ %s — %s", c.Name, c.Message))
	}

	for k, v := range job.Extracted {
		lines = append(lines, fmt.Sprintf("• %s = %s", k, v))
	}

	for _, up := range job.Uploads {
		if up.Success {
			lines = append(lines, fmt.Sprintf("↑ %s -> %s", up.Path, up.URL))
		} else {
			lines = append(lines, fmt.Sprintf("✗ upload %s — %s", up.Path, up.Message))
		}
	}

	return lines
}
