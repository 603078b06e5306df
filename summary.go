package stepflow

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/stepflow-dev/stepflow/types"
)

// printSummaryTable prints the run summary to the console as a tree of
// features, scenarios and steps.
func (c *Coordinator) printSummaryTable(summary *types.ExecutionSummary) {
	c.config.Log.Info("Printing results...")
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("Scenario Execution Results (%s)", formatDuration(summary.Duration)))

	t.AppendHeader(table.Row{
		"Type", "Name", "Duration", "Scenarios", "Passed", "Failed", "Skipped", "Status", "Error",
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "Name", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Scenarios", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, feat := range summary.OrderedFeatures() {
		t.AppendRow(table.Row{
			"Feature",
			feat.Name,
			formatDuration(feat.Duration),
			"-", // Don't count the feature row itself
			feat.Stats.Passed,
			feat.Stats.Failed,
			feat.Stats.Skipped,
			statusString(feat.Status),
			"",
		})

		for i, scenario := range feat.Scenarios {
			prefix := "├──"
			if i == len(feat.Scenarios)-1 {
				prefix = "└──"
			}

			errorMsg := extractKeyErrorMessage(scenario.Error)

			t.AppendRow(table.Row{
				"Scenario",
				fmt.Sprintf("%s %s", prefix, scenario.Name),
				formatDuration(scenario.Duration),
				"1",
				boolToInt(scenario.Status == types.StatusPassed),
				boolToInt(scenario.Status == types.StatusFailed),
				boolToInt(scenario.Status == types.StatusSkipped),
				statusString(scenario.Status),
				errorMsg,
			})

			// Step rows are only shown when the scenario did not pass, to
			// keep large runs readable.
			if scenario.Status == types.StatusPassed {
				continue
			}
			stem := "│   "
			if i == len(feat.Scenarios)-1 {
				stem = "    "
			}
			for j, step := range scenario.Steps {
				stepPrefix := stem + "├──"
				if j == len(scenario.Steps)-1 {
					stepPrefix = stem + "└──"
				}
				t.AppendRow(table.Row{
					"",
					fmt.Sprintf("%s %s %s", stepPrefix, step.Keyword, step.Text),
					formatDuration(step.Duration),
					"",
					"",
					"",
					"",
					statusString(step.Status),
					extractKeyErrorMessage(step.Error),
				})
			}
		}

		t.AppendSeparator()
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		formatDuration(summary.Duration),
		summary.Scenarios.Total,
		summary.Scenarios.Passed,
		summary.Scenarios.Failed,
		summary.Scenarios.Skipped,
		statusString(summary.Status),
		extractKeyErrorMessage(summary.Error),
	})

	// Style the table based on overall run status
	switch summary.Status {
	case types.StatusPassed:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case types.StatusFailed:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	}

	t.Render()
}

// extractKeyErrorMessage pulls the most meaningful line out of an error for
// display in the results table.
func extractKeyErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	errStr := err.Error()

	// Panic and hook-timeout messages carry the key detail on their own line
	for _, marker := range []string{"panicked:", "panic:", "timed out after"} {
		if idx := strings.Index(errStr, marker); idx != -1 {
			end := len(errStr)
			if newLine := strings.Index(errStr[idx:], "\n"); newLine != -1 {
				end = idx + newLine
			}
			return truncateError(errStr[idx:end])
		}
	}

	// Otherwise use the first line
	if newLine := strings.Index(errStr, "\n"); newLine != -1 {
		errStr = errStr[:newLine]
	}
	return truncateError(errStr)
}

func truncateError(s string) string {
	const maxLen = 160
	if len(s) > maxLen {
		return s[:maxLen-3] + "..."
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// statusString returns a marked string representing the outcome
func statusString(status types.Status) string {
	switch status {
	case types.StatusPassed:
		return "✓ passed"
	case types.StatusSkipped:
		return "- skipped"
	case types.StatusPending:
		return "? pending"
	default:
		return "✗ failed"
	}
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
