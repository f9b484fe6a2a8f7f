package cli

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/getmockd/wshandshake/pkg/handshake"
	"github.com/spf13/cobra"
)

var acceptKeyVerify string

type acceptKeyResult struct {
	Key    string `json:"key"`
	Accept string `json:"accept"`
	Match  *bool  `json:"match,omitempty"`
}

var acceptKeyCmd = &cobra.Command{
	Use:   "accept-key [key]",
	Short: "Compute the Sec-WebSocket-Accept value for a key",
	Long: `Compute the Sec-WebSocket-Accept value a server must return for a
Sec-WebSocket-Key. Without a key a fresh random one is generated.`,
	Example: `  wshandshake accept-key dGhlIHNhbXBsZSBub25jZQ==
  wshandshake accept-key dGhlIHNhbXBsZSBub25jZQ== --verify s3pPLMBiTxaQ9kYGzzhZRbK+xOo=`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var key string
		if len(args) == 1 {
			key = args[0]
		} else {
			var nonce [16]byte
			if _, err := rand.Read(nonce[:]); err != nil {
				return fmt.Errorf("failed to generate key: %w", err)
			}
			key = base64.StdEncoding.EncodeToString(nonce[:])
		}

		res := acceptKeyResult{Key: key, Accept: handshake.AcceptKey(key)}
		if cmd.Flags().Changed("verify") {
			match := res.Accept == acceptKeyVerify
			res.Match = &match
		}

		if err := printResult(cmd, res, func() {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				fmt.Fprintf(out, "Sec-WebSocket-Key: %s\n", res.Key)
				fmt.Fprintf(out, "Sec-WebSocket-Accept: %s\n", res.Accept)
			} else {
				fmt.Fprintln(out, res.Accept)
			}
			if res.Match != nil && !*res.Match {
				fmt.Fprintf(cmd.ErrOrStderr(), "mismatch: expected %s, got %s\n", res.Accept, acceptKeyVerify)
			}
		}); err != nil {
			return err
		}
		if res.Match != nil && !*res.Match {
			return &exitError{code: exitCodeHandshake}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(acceptKeyCmd)
	acceptKeyCmd.Flags().StringVar(&acceptKeyVerify, "verify", "", "Compare against this Sec-WebSocket-Accept value")
}
