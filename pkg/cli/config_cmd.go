package cli

import (
	"errors"
	"fmt"
	"sort"

	"github.com/getmockd/wshandshake/pkg/cli/internal/output"
	"github.com/getmockd/wshandshake/pkg/config"
	"github.com/getmockd/wshandshake/pkg/logging"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and validate configuration",
}

type validateResult struct {
	File     string           `json:"file"`
	Valid    bool             `json:"valid"`
	Problems []config.Problem `json:"problems,omitempty"`
	Error    string           `json:"error,omitempty"`
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file against the configuration schema and check
that its files, durations, extension offers and trust rule are usable.
Defaults to the file given with --config.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file := configFile
		if len(args) == 1 {
			file = args[0]
		}
		if file == "" {
			return errors.New("no configuration file given")
		}

		res := validateResult{File: file, Valid: true}
		cfg, err := config.LoadFile(file)
		if err == nil {
			_, err = cfg.DialOptions(logging.Nop())
			if errors.Is(err, config.ErrNoURL) {
				err = nil
			}
		}
		if err != nil {
			res.Valid = false
			var verr *config.ValidationError
			if errors.As(err, &verr) {
				res.Problems = verr.Problems
			} else {
				res.Error = err.Error()
			}
		}

		if err := printResult(cmd, res, func() {
			out := cmd.OutOrStdout()
			if res.Valid {
				fmt.Fprintf(out, "%s: valid\n", res.File)
				return
			}
			fmt.Fprintf(out, "%s: invalid\n", res.File)
			for _, p := range res.Problems {
				fmt.Fprintf(out, "  - %s\n", p.String())
			}
			if res.Error != "" {
				fmt.Fprintf(out, "  - %s\n", res.Error)
			}
		}); err != nil {
			return err
		}
		if !res.Valid {
			return &exitError{code: exitCodeError}
		}
		return nil
	},
}

type configEntry struct {
	Key    string `json:"key"`
	Value  any    `json:"value"`
	Source string `json:"source"`
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration and where each value came from",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		entries := configEntries(cfg)
		return printResult(cmd, entries, func() {
			tw := output.Table(cmd.OutOrStdout())
			fmt.Fprintln(tw, "KEY\tVALUE\tSOURCE")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%v\t%s\n", e.Key, e.Value, e.Source)
			}
			_ = tw.Flush()
		})
	},
}

var configSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the configuration JSON schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := cmd.OutOrStdout().Write(config.Schema())
		return err
	},
}

// configEntries lists every key with a recorded source. Credentials are
// summarized so passwords are never printed.
func configEntries(cfg *config.Config) []configEntry {
	values := map[string]any{
		"url":              cfg.URL,
		"origin":           cfg.Origin,
		"userAgent":        cfg.UserAgent,
		"acceptLanguage":   cfg.AcceptLanguage,
		"headers":          cfg.Headers,
		"subprotocols":     cfg.Subprotocols,
		"extensions":       cfg.Extensions,
		"deflate":          cfg.Deflate,
		"timeout":          cfg.Timeout,
		"maxAuthRounds":    cfg.MaxAuthRounds,
		"maxHeaderBytes":   cfg.MaxHeaderBytes,
		"caCertFile":       cfg.CACertFile,
		"allowedCertFiles": cfg.AllowedCertFiles,
		"trust":            cfg.Trust,
		"credentials":      fmt.Sprintf("%d entries", len(cfg.Credentials)),
		"log.level":        cfg.Log.Level,
		"log.format":       cfg.Log.Format,
	}

	entries := make([]configEntry, 0, len(cfg.Sources))
	for key, source := range cfg.Sources {
		v, ok := values[key]
		if !ok {
			continue
		}
		entries = append(entries, configEntry{Key: key, Value: v, Source: source})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd, configShowCmd, configSchemaCmd)
}
