package cli

import (
	"fmt"
	"strings"

	"github.com/getmockd/wshandshake/pkg/cli/internal/flags"
	"github.com/getmockd/wshandshake/pkg/cli/internal/output"
	"github.com/getmockd/wshandshake/pkg/handshake"
	"github.com/spf13/cobra"
)

var (
	extensionsOffers  flags.StringSlice
	extensionsDeflate bool
)

type extensionsResult struct {
	Extensions []handshake.Extension `json:"extensions"`
	Agreement  *handshake.Agreement  `json:"agreement,omitempty"`
	Error      *errorReport          `json:"error,omitempty"`
}

var extensionsCmd = &cobra.Command{
	Use:   "extensions <value>",
	Short: "Parse a Sec-WebSocket-Extensions value",
	Long: `Parse a Sec-WebSocket-Extensions header value. With --offer or --deflate
the value is treated as a server response and negotiated against the
offers exactly as dial would.`,
	Example: `  wshandshake extensions 'permessage-deflate; server_max_window_bits=10'
  wshandshake extensions 'permessage-deflate; client_max_window_bits=9' --deflate`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value := args[0]
		res := extensionsResult{}

		exts, err := handshake.ParseExtensions(value)
		if err != nil {
			res.Error = &errorReport{Kind: handshake.KindOf(err).String(), Message: err.Error()}
		}
		res.Extensions = exts

		var offers []handshake.Extension
		for _, raw := range extensionsOffers {
			parsed, err := handshake.ParseExtensions(raw)
			if err != nil {
				return fmt.Errorf("invalid offer %q: %w", raw, err)
			}
			offers = append(offers, parsed...)
		}
		if extensionsDeflate {
			offers = append(offers, handshake.PerMessageDeflateOffer())
		}
		if res.Error == nil && len(offers) > 0 {
			res.Agreement, err = handshake.NegotiateExtensions(offers, value)
			if err != nil {
				res.Error = &errorReport{Kind: handshake.KindOf(err).String(), Message: err.Error()}
			}
		}

		if err := printResult(cmd, res, func() {
			out := cmd.OutOrStdout()
			if res.Error != nil {
				fmt.Fprintf(out, "Rejected (%s)\n", kindTitle(res.Error.Kind))
				fmt.Fprintln(cmd.ErrOrStderr(), res.Error.Message)
				return
			}
			tw := output.Table(out)
			fmt.Fprintln(tw, "NAME\tPARAMETERS")
			for _, e := range res.Extensions {
				params := make([]string, len(e.Params))
				for i, p := range e.Params {
					params[i] = p.String()
				}
				fmt.Fprintf(tw, "%s\t%s\n", e.Name, strings.Join(params, "; "))
			}
			_ = tw.Flush()
			if res.Agreement != nil {
				fmt.Fprintf(out, "Accepted: %s\n", res.Agreement.String())
			} else if len(offers) > 0 {
				fmt.Fprintln(out, "Accepted: none")
			}
		}); err != nil {
			return err
		}
		if res.Error != nil {
			return &exitError{code: exitCodeHandshake}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(extensionsCmd)
	extensionsCmd.Flags().Var(&extensionsOffers, "offer", "Extension offer the value is negotiated against (repeatable)")
	extensionsCmd.Flags().BoolVar(&extensionsDeflate, "deflate", false, "Negotiate against the default permessage-deflate offer")
}
