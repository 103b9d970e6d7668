package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/cyp0633/smartdate/internal/config"
	"github.com/cyp0633/smartdate/override"
	"github.com/cyp0633/smartdate/recurrence"
	"github.com/cyp0633/smartdate/window"
)

const (
	previewRuleID = "preview"
	dayFormat     = "Mon 2006-01-02"
	clockFormat   = "15:04"
)

var previewCmd = &cobra.Command{
	Use:   "preview [rule-id]",
	Short: "Show the instances around now for a rule",
	Long: `Renders the display window of a stored rule. With --rrule the rule is built
from the flags instead and previewed without touching storage.`,
	Example: `  smartdated preview weekly-sync
  smartdated preview --rrule "FREQ=WEEKLY;BYDAY=MO,WE" --start 2024-01-01T09:00:00Z --end 2024-01-01T10:00:00Z`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPreview,
}

func init() {
	f := previewCmd.Flags()
	f.String("at", "", "reference instant as RFC 3339 (default now)")
	f.String("rrule", "", "preview an ad-hoc RRULE instead of a stored rule")
	f.String("start", "", "first instance start for --rrule, RFC 3339")
	f.String("end", "", "first instance end for --rrule, RFC 3339 (default start)")
}

func parseFlagTime(cmd *cobra.Command, name string) (time.Time, error) {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", name, err)
	}
	return t, nil
}

// adHocRule builds the rule described by --rrule, --start and --end.
func adHocRule(cmd *cobra.Command) (recurrence.Rule, error) {
	value, _ := cmd.Flags().GetString("rrule")
	start, err := parseFlagTime(cmd, "start")
	if err != nil {
		return recurrence.Rule{}, err
	}
	if start.IsZero() {
		return recurrence.Rule{}, fmt.Errorf("--start is required with --rrule")
	}
	end, err := parseFlagTime(cmd, "end")
	if err != nil {
		return recurrence.Rule{}, err
	}
	if end.IsZero() {
		end = start
	}
	return recurrence.ParseRRule(previewRuleID, value, start, end)
}

func runPreview(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	at, err := parseFlagTime(cmd, "at")
	if err != nil {
		return err
	}
	if at.IsZero() {
		at = time.Now()
	}

	adHoc, _ := cmd.Flags().GetString("rrule")
	if (adHoc == "") == (len(args) == 0) {
		return fmt.Errorf("give either a rule id or --rrule")
	}

	c := cfg
	if adHoc != "" {
		scratch := *cfg
		scratch.Storage = config.StorageConfig{Driver: config.DriverMemory}
		c = &scratch
	}

	a, err := newApp(ctx, c, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	ruleID := previewRuleID
	if adHoc != "" {
		rule, err := adHocRule(cmd)
		if err != nil {
			return err
		}
		if err := a.svc.SaveRule(ctx, &rule); err != nil {
			return err
		}
	} else {
		ruleID = args[0]
	}

	rule, err := a.svc.Rule(ctx, ruleID)
	if err != nil {
		return err
	}
	display, err := a.svc.Window(ctx, ruleID, at)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderWindow(*rule, display, a.cfg.Location()))
	return nil
}

// renderWindow formats a display window as a bordered terminal card.
func renderWindow(rule recurrence.Rule, d window.Display, loc *time.Location) string {
	var lines []string
	lines = append(lines, TitleStyle.Render(rule.ID)+"  "+SubtitleStyle.Render(rule.Text))
	lines = append(lines, SubtitleStyle.Render("RRULE:"+rule.RRule()))
	lines = append(lines, "")

	switch {
	case d.Empty():
		lines = append(lines, WarningStyle.Render("no instances"))
	case d.Range.IsPresent():
		r := d.Range.MustGet()
		lines = append(lines, nextStyle.Render(fmt.Sprintf("daily  %s %s  →  %s %s",
			r.Start.In(loc).Format(dayFormat), r.Start.In(loc).Format(clockFormat),
			r.End.In(loc).Format(dayFormat), r.End.In(loc).Format(clockFormat))))
	default:
		// Past groups arrive most recent first; show them chronologically.
		for i := len(d.Past) - 1; i >= 0; i-- {
			lines = append(lines, renderGroup("past", d.Past[i], loc, pastStyle))
		}
		if next, ok := d.Next.Get(); ok {
			lines = append(lines, renderGroup("next", next, loc, nextStyle))
		}
		for i, g := range d.Upcoming {
			label, style := "upcoming", lipgloss.NewStyle()
			if i == 0 && d.Next.IsAbsent() {
				label, style = "next", nextStyle
			}
			lines = append(lines, renderGroup(label, g, loc, style))
		}
		if d.AllPast {
			lines = append(lines, "", WarningStyle.Render("all instances are in the past"))
		}
	}

	return previewBoxStyle.Render(strings.Join(lines, "\n"))
}

func renderGroup(label string, g window.Group, loc *time.Location, style lipgloss.Style) string {
	start, _ := g.Span()
	head := fmt.Sprintf("%-8s %s", label, start.In(loc).Format(dayFormat))

	parts := make([]string, 0, len(g.Instances))
	for _, inst := range g.Instances {
		parts = append(parts, renderInstance(inst, loc))
	}
	return style.Render(head) + "  " + strings.Join(parts, ", ")
}

func renderInstance(inst override.EffectiveInstance, loc *time.Location) string {
	span := inst.Start.In(loc).Format(clockFormat) + "-" + inst.End.In(loc).Format(clockFormat)
	switch inst.Kind {
	case override.Cancelled:
		return cancelledStyle.Render(span) + " " + cancelledStyle.UnsetStrikethrough().Render("(cancelled)")
	case override.Rescheduled:
		return rescheduledStyle.Render(span + " (rescheduled)")
	case override.Overridden:
		return overriddenStyle.Render(span + " → " + inst.Override.EntityID)
	default:
		return span
	}
}
