package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/getmockd/wshandshake/pkg/config"
	"github.com/getmockd/wshandshake/pkg/logging"
	"github.com/spf13/cobra"
)

var (
	// Persistent flags available to all subcommands
	configFile string
	jsonOutput bool
	logLevel   string
	logFormat  string
	logFile    string

	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wshandshake",
	Short: "wshandshake performs and inspects WebSocket opening handshakes",
	Long: `wshandshake runs the client side of the WebSocket opening handshake
(RFC 6455) against a ws:// or wss:// URL and reports exactly what was
negotiated: subprotocol, permessage-deflate parameters, authentication
rounds and certificate decisions.

Configuration can be provided via flags, WSH_* environment variables, or a
YAML configuration file passed with --config.`,
	SilenceUsage:  true,
	SilenceErrors: true, // We handle errors in Main()
}

// exitError carries a process exit code for failures already reported to
// the user.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// Exit codes.
const (
	exitCodeOK        = 0
	exitCodeError     = 1
	exitCodeHandshake = 2
)

// Main runs the CLI with os.Args and returns the process exit code.
func Main() int {
	return run(os.Args[1:], os.Stdout, os.Stderr)
}

// Execute runs the CLI and exits the process.
func Execute() {
	os.Exit(Main())
}

func run(args []string, stdout, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		fmt.Fprintln(stderr, "Error:", err)
		return exitCodeError
	}
	return exitCodeOK
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output command results in JSON format")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default warn)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json (default text)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write debug logs as JSON to this file")
}

// loadConfig merges defaults, the --config file, the environment and the
// persistent log flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = logLevel
		cfg.Set("log.level", config.SourceFlag)
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format = logFormat
		cfg.Set("log.format", config.SourceFlag)
	}
	return cfg, nil
}

// newLogger writes to the command's stderr so --json output stays clean.
// With --log-file every record is also appended to the file as JSON. The
// returned func closes the file.
func newLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, func(), error) {
	stderr := logging.NewHandler(cfg.Logging(cmd.ErrOrStderr()))
	if logFile == "" {
		return slog.New(stderr), func() {}, nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	file := logging.NewHandler(logging.Config{
		Level:  logging.LevelDebug,
		Format: logging.FormatJSON,
		Output: f,
	})
	return slog.New(logging.Tee(stderr, file)), func() { _ = f.Close() }, nil
}
