package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/semledger/internal/integrity"
	"github.com/roach88/semledger/internal/repair"
)

// NewRepairCommand creates the repair command.
func NewRepairCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Validate at full level and apply automatic repairs",
		Long: `Validate at full level, apply every auto-fixable recommendation in one
atomic batch and re-validate.

A batch that hits a storage error is rolled back as a whole.

Exit codes:
  0 - Ledger is healthy or warning after repair
  1 - Ledger is still critical, or the batch was rolled back
  2 - Command error`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepair(rootOpts, cmd)
		},
	}
}

func runRepair(opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	ctx := commandContext(cmd)
	e, err := openEnv(ctx, opts, cmd, f)
	if err != nil {
		return err
	}
	defer e.Close()

	vctx, cancel := e.validationContext(ctx)
	defer cancel()

	validator := e.integrityValidator()
	report, err := validator.Validate(vctx, e.ledger)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeValidation, "validation failed", err)
	}
	f.VerboseLog("Pre-repair status %s with %d auto-fixable recommendation(s)", report.OverallStatus, len(report.AutoFixable()))

	engine := repair.NewEngine(repair.Options{Validator: validator, Logger: e.logger})
	res, err := engine.Repair(vctx, e.ledger, report)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeRepair, "repair failed", err)
	}

	text := func(w io.Writer) error { return renderRepair(w, res) }
	switch {
	case res.RolledBack:
		return failRepair(f, "repair batch rolled back", res, text)
	case res.StillCritical:
		return failRepair(f, "ledger is still critical after repair", res, text)
	}
	return f.Emit(res, text)
}

func failRepair(f *OutputFormatter, msg string, res *repair.Result, text func(io.Writer) error) error {
	if err := f.EmitFailure(ErrCodeRepair, msg, res, text); err != nil {
		return err
	}
	return &ExitError{Code: ExitFailure, Message: msg, Reported: true}
}

func renderRepair(w io.Writer, res *repair.Result) error {
	fmt.Fprintf(w, "Repaired: %d, failed: %d\n", res.Successful, res.Failed)
	for _, is := range res.Repaired {
		fmt.Fprintf(w, "  ✓ [%s] %s\n", is.Category, is.Description)
	}
	for _, is := range res.FailedIssues {
		fmt.Fprintf(w, "  ✗ [%s] %s: %s\n", is.Category, is.Description, is.Error)
	}
	if len(res.ManualInterventionRequired) > 0 {
		fmt.Fprintln(w, "Manual intervention required:")
		for _, m := range res.ManualInterventionRequired {
			fmt.Fprintf(w, "  - %s\n", m)
		}
	}
	if res.RolledBack {
		fmt.Fprintln(w, "Batch rolled back; the ledger is unchanged.")
	}
	if res.Post == nil {
		return nil
	}
	fmt.Fprintln(w)
	return integrity.RenderSummary(w, res.Post)
}
