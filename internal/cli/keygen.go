package cli

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// KeyPair is a generated validator key. PrivateKey is the hex ed25519
// seed and is omitted when the key was written to a file.
type KeyPair struct {
	ValidatorID string `json:"validator_id"`
	PublicKey   string `json:"public_key"`
	PrivateKey  string `json:"private_key,omitempty"`
	KeyFile     string `json:"key_file,omitempty"`
}

// NewKeygenCommand creates the keygen command.
func NewKeygenCommand(rootOpts *RootOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an ed25519 validator key pair",
		Long: `Generate an ed25519 key pair and print it in hex.

The validator id of an open-mode ledger is the hex public key. With --out
the private seed is written to a 0600 file instead of being printed, and
that file can be passed to append --key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeygen(rootOpts, out, cmd)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "write the private seed to this file")

	return cmd
}

func runKeygen(opts *RootOptions, out string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to generate key", err)
	}
	kp := KeyPair{
		ValidatorID: hex.EncodeToString(pub),
		PublicKey:   hex.EncodeToString(pub),
	}
	seed := hex.EncodeToString(priv.Seed())
	if out != "" {
		if err := os.WriteFile(out, []byte(seed+"\n"), 0o600); err != nil {
			return f.Fail(ExitCommandError, ErrCodeInput, "failed to write key file", err)
		}
		kp.KeyFile = out
	} else {
		kp.PrivateKey = seed
	}

	return f.Emit(kp, func(w io.Writer) error {
		fmt.Fprintf(w, "validator id: %s\n", kp.ValidatorID)
		if kp.KeyFile != "" {
			fmt.Fprintf(w, "private seed written to %s\n", kp.KeyFile)
			return nil
		}
		_, err := fmt.Fprintf(w, "private seed: %s\n", kp.PrivateKey)
		return err
	})
}

// readKey loads a hex private key file: a 32-byte seed or a 64-byte
// ed25519 private key.
func readKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("key file is not hex: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	}
	return nil, fmt.Errorf("key file holds %d bytes, want %d or %d", len(raw), ed25519.SeedSize, ed25519.PrivateKeySize)
}
