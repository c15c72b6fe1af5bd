package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// InitResult describes an opened or created ledger.
type InitResult struct {
	Store       string `json:"store"`
	ChainLength int    `json:"chain_length"`
	GenesisHash string `json:"genesis_hash"`
	// Mode is "allow-list" when validators are configured, else "open".
	Mode string `json:"mode"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the store and commit the genesis block",
		Long: `Create the store and commit the genesis block.

Running init against an existing store reopens it and reports its state;
the genesis block is only written to an empty chain.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(rootOpts, cmd)
		},
	}
}

func runInit(opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	e, err := openEnv(commandContext(cmd), opts, cmd, f)
	if err != nil {
		return err
	}
	defer e.Close()

	blocks := e.ledger.Blocks()
	res := InitResult{
		Store:       e.cfg.Store.Path,
		ChainLength: len(blocks),
		GenesisHash: blocks[0].Hash,
		Mode:        "open",
	}
	if len(e.cfg.Validators) > 0 {
		res.Mode = "allow-list"
	}

	return f.Emit(res, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Ledger at %s: %d block(s), %s mode\ngenesis %s\n",
			res.Store, res.ChainLength, res.Mode, res.GenesisHash)
		return err
	})
}
