package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/semledger/internal/integrity"
	"github.com/roach88/semledger/internal/monitor"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Level string
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run the integrity validator and print its report",
		Long: `Run the integrity validator at a monitoring level and print the report.

Levels:
  minimal       chain shape plus a spot check of the last blocks
  standard      adds the transaction count check
  comprehensive adds query consistency and sampled canonicalization
  full          every phase over every graph

Without --level the configured monitor.level is used.

Exit codes:
  0 - Healthy or warning
  1 - Critical or corrupted
  2 - Command error (including a refusal by the memory guard)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Level, "level", "l", "", "validation level (minimal|standard|comprehensive|full)")

	return cmd
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)
	e, err := openEnv(ctx, opts.RootOptions, cmd, f)
	if err != nil {
		return err
	}
	defer e.Close()

	level := e.cfg.Monitor.Level
	if opts.Level != "" {
		if level, err = monitor.ParseLevel(opts.Level); err != nil {
			return f.Fail(ExitCommandError, ErrCodeInput, "invalid level", err)
		}
	}
	f.VerboseLog("Validating %d block(s) at level %s", e.ledger.Len(), level)

	vctx, cancel := e.validationContext(ctx)
	defer cancel()
	report, err := e.optimizedValidator(nil).Validate(vctx, e.ledger, level)
	if err != nil {
		if errors.Is(err, monitor.ErrResourceLimit) {
			return f.Fail(ExitCommandError, ErrCodeValidation, "validation refused", err)
		}
		return f.Fail(ExitCommandError, ErrCodeValidation, "validation failed", err)
	}

	return emitReport(f, report)
}

// emitReport prints a report and fails the command when it is critical or
// corrupted.
func emitReport(f *OutputFormatter, report *integrity.Report) error {
	text := func(w io.Writer) error { return integrity.RenderSummary(w, report) }
	if report.OverallStatus < integrity.Critical {
		return f.Emit(report, text)
	}
	msg := fmt.Sprintf("ledger is %s", report.OverallStatus)
	if err := f.EmitFailure(ErrCodeIntegrity, msg, report, text); err != nil {
		return err
	}
	return &ExitError{Code: ExitFailure, Message: msg, Reported: true}
}
