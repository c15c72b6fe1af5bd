package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewBlocksCommand creates the blocks command.
func NewBlocksCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "blocks",
		Short: "List block headers",
		Long: `List the headers of the in-memory chain, oldest first.

With --limit only the last N blocks are listed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBlocks(rootOpts, limit, cmd)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "list only the last N blocks")

	return cmd
}

func runBlocks(opts *RootOptions, limit int, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	e, err := openEnv(commandContext(cmd), opts, cmd, f)
	if err != nil {
		return err
	}
	defer e.Close()

	blocks := e.ledger.Blocks()
	if limit > 0 && limit < len(blocks) {
		blocks = blocks[len(blocks)-limit:]
	}
	summaries := make([]BlockSummary, 0, len(blocks))
	for _, b := range blocks {
		summaries = append(summaries, summarizeBlock(b))
	}

	return f.Emit(summaries, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "INDEX\tTIMESTAMP\tHASH\tVALIDATOR")
		for _, s := range summaries {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Index, s.Timestamp, abbrev(s.Hash), abbrev(s.ValidatorID))
		}
		return tw.Flush()
	})
}

func abbrev(s string) string {
	if len(s) <= 16 {
		return s
	}
	return s[:16]
}
