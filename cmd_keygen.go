package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/nicebartender/nostrbot/nostr"
)

func newKeygenCmd() *cobra.Command {
	var (
		out   string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a bot keypair",
		Long:  "Generate a new keypair and print it in hex and bech32 form.\nWith --out the hex secret is also written to a file readable only by you.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := nostr.GenerateKeypair()
			if err != nil {
				return fmt.Errorf("keygen: %w", err)
			}
			npub, err := nostr.EncodePublicKey(k.PublicKey())
			if err != nil {
				return fmt.Errorf("keygen: %w", err)
			}
			nsec, err := nostr.EncodeSecretKey(k.SecretHex())
			if err != nil {
				return fmt.Errorf("keygen: %w", err)
			}

			if out != "" {
				flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
				if force {
					flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
				}
				f, err := os.OpenFile(out, flags, 0o600)
				if errors.Is(err, fs.ErrExist) {
					return fmt.Errorf("keygen: %s exists; use --force to overwrite", out)
				}
				if err != nil {
					return fmt.Errorf("keygen: %w", err)
				}
				_, werr := fmt.Fprintln(f, k.SecretHex())
				if cerr := f.Close(); werr == nil {
					werr = cerr
				}
				if werr != nil {
					return fmt.Errorf("keygen: write %s: %w", out, werr)
				}
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "pubkey: %s\n", k.PublicKey())
			fmt.Fprintf(w, "npub:   %s\n", npub)
			fmt.Fprintf(w, "nsec:   %s\n", nsec)
			if out != "" {
				fmt.Fprintf(w, "secret written to %s\n", out)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the hex secret to this file")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing --out file")
	return cmd
}
