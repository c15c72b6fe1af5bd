package cli

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/semledger/internal/ledger"
)

// AppendOptions holds flags for the append command.
type AppendOptions struct {
	*RootOptions
	KeyFile   string
	Validator string
}

// BlockSummary is the CLI view of a block header.
type BlockSummary struct {
	Index        uint64 `json:"index"`
	Timestamp    string `json:"timestamp"`
	Hash         string `json:"hash"`
	PreviousHash string `json:"previous_hash"`
	ValidatorID  string `json:"validator_id"`
}

func summarizeBlock(b ledger.Block) BlockSummary {
	return BlockSummary{
		Index:        b.Index,
		Timestamp:    b.Timestamp,
		Hash:         b.Hash,
		PreviousHash: b.PreviousHash,
		ValidatorID:  b.ValidatorID,
	}
}

// NewAppendCommand creates the append command.
func NewAppendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AppendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "append [payload-file]",
		Short: "Propose, sign and submit an RDF payload",
		Long: `Propose a block for a Turtle or N-Triples payload, sign its hash with
--key and submit it.

The payload is read from the file argument, or from stdin when the
argument is omitted or "-". Without --validator the validator id is the
hex public key of --key, which is what an open-mode ledger expects.

Exit codes:
  0 - Block committed
  1 - Block rejected (policy, unknown validator, bad signature, ...)
  2 - Command error (unreadable key or payload, store errors)`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			return runAppend(opts, path, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.KeyFile, "key", "k", "", "hex ed25519 seed or private key file (required)")
	cmd.Flags().StringVar(&opts.Validator, "validator", "", "validator id (default: hex public key)")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func runAppend(opts *AppendOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	priv, err := readKey(opts.KeyFile)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInput, "failed to read key", err)
	}
	payload, err := readPayload(path, cmd.InOrStdin())
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInput, "failed to read payload", err)
	}
	id := opts.Validator
	if id == "" {
		id = hex.EncodeToString(priv.Public().(ed25519.PublicKey))
	}

	ctx := commandContext(cmd)
	e, err := openEnv(ctx, opts.RootOptions, cmd, f)
	if err != nil {
		return err
	}
	defer e.Close()

	b, err := e.ledger.Propose(ctx, payload, id, nil)
	if err != nil {
		if errors.Is(err, ledger.ErrPolicyViolation) {
			return f.Fail(ExitFailure, ErrCodeRejected, string(ledger.ErrCodePolicyViolation), err)
		}
		return f.Fail(ExitCommandError, ErrCodeInput, "failed to propose block", err)
	}
	f.VerboseLog("Proposed block %d with hash %s", b.Index, b.Hash)

	if err := b.Sign(priv); err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to sign block", err)
	}
	if err := e.ledger.SubmitSigned(ctx, b); err != nil {
		if code := ledger.CodeOf(err); code != "" {
			return f.Fail(ExitFailure, ErrCodeRejected, string(code), err)
		}
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to submit block", err)
	}

	sum := summarizeBlock(*b)
	return f.Emit(sum, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Committed block %d\n  hash: %s\n  validator: %s\n", sum.Index, sum.Hash, sum.ValidatorID)
		return err
	})
}

func readPayload(path string, stdin io.Reader) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", errors.New("payload is empty")
	}
	return string(data), nil
}
