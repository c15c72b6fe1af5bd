package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// VerifyResult is the outcome of the chain validity check.
type VerifyResult struct {
	Valid       bool `json:"valid"`
	ChainLength int  `json:"chain_length"`
	// ValidPrefix is the number of leading blocks that check out.
	ValidPrefix int `json:"valid_prefix"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the hashes and links of the chain",
		Long: `Recompute every block hash from its stored graph and check the
previous-hash links.

Exit codes:
  0 - Chain is valid
  1 - Chain is invalid
  2 - Command error`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(rootOpts, cmd)
		},
	}
}

func runVerify(opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	ctx := commandContext(cmd)
	e, err := openEnv(ctx, opts, cmd, f)
	if err != nil {
		return err
	}
	defer e.Close()

	prefix, err := e.ledger.ValidPrefix(ctx)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeValidation, "failed to verify chain", err)
	}
	res := VerifyResult{
		ChainLength: e.ledger.Len(),
		ValidPrefix: prefix,
	}
	res.Valid = res.ValidPrefix == res.ChainLength

	text := func(w io.Writer) error {
		if res.Valid {
			_, err := fmt.Fprintf(w, "✓ Chain valid (%d block(s))\n", res.ChainLength)
			return err
		}
		_, err := fmt.Fprintf(w, "✗ Chain invalid: first bad block is %d of %d\n", res.ValidPrefix, res.ChainLength)
		return err
	}
	if res.Valid {
		return f.Emit(res, text)
	}
	msg := fmt.Sprintf("chain invalid from block %d", res.ValidPrefix)
	if err := f.EmitFailure(ErrCodeIntegrity, msg, res, text); err != nil {
		return err
	}
	return &ExitError{Code: ExitFailure, Message: msg, Reported: true}
}
