package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var applyCmd = &cobra.Command{
	Use:   "apply [rule-id...]",
	Short: "Write effective instances to their owning entities",
	Long: `Expands each rule, applies its overrides and replaces the rule's values on the
owning entity. Without arguments every stored rule is applied.`,
	RunE: runApply,
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	if len(args) == 0 {
		if err := a.svc.ApplyAll(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, SuccessStyle.Render("All rules applied"))
		return nil
	}

	for _, id := range args {
		n, err := a.svc.ApplyChanges(ctx, id)
		if err != nil {
			return fmt.Errorf("rule %s: %w", id, err)
		}
		fmt.Fprintln(out, SuccessStyle.Render(fmt.Sprintf("%s: %d values written", id, n)))
	}
	return nil
}
