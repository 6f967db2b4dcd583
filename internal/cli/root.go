// Package cli implements the riddler command-line interface. Commands run
// against a remote server when --url is set and against the local backend
// from config.yaml otherwise.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/riddler/internal/logging"
	"github.com/mesh-intelligence/riddler/internal/paths"
	"github.com/mesh-intelligence/riddler/pkg/riddler"
	"github.com/mesh-intelligence/riddler/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values.
type rootFlags struct {
	configDir string
	dataDir   string
	url       string
	token     string
	jsonMode  bool
	logLevel  string
	logFormat string
}

// app is the state shared by every command of one invocation.
type app struct {
	flags     rootFlags
	configDir string
	config    *viper.Viper
	logger    *slog.Logger
}

// NewRootCmd creates the top-level "riddler" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:     "riddler",
		Short:   "Dictionary and corpus metadata registry",
		Long:    "Riddler stores pronunciation dictionaries, speech corpora, and their items,\nand serves them over HTTP.",
		Version: riddler.Version,
		// Do not print usage on errors returned by subcommands.
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	pf.StringVar(&a.flags.dataDir, "data-dir", "", "data directory for the sqlite backend")
	pf.StringVar(&a.flags.url, "url", "", "riddler server URL; empty runs against the local backend")
	pf.StringVar(&a.flags.token, "token", "", "bearer token for the server")
	pf.BoolVar(&a.flags.jsonMode, "json", false, "output as JSON")
	pf.StringVar(&a.flags.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	pf.StringVar(&a.flags.logFormat, "log-format", logging.FormatText, "log format: text or json")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(a),
		newServeCmd(a),
		newEchoCmd(a),
		newDictionaryCmd(a),
		newCorpusCmd(a),
		newPronunciationCmd(a),
		newItemCmd(a),
		newCheckCmd(a),
		newSnapshotCmd(a),
		newTokenCmd(a),
	)
	return root
}

// setup resolves directories, loads config, and builds the logger.
func (a *app) setup(cmd *cobra.Command) error {
	level, err := logging.ParseLevel(a.flags.logLevel)
	if err != nil {
		return userError(err)
	}
	a.logger, err = logging.New(cmd.ErrOrStderr(), a.flags.logFormat, level)
	if err != nil {
		return userError(err)
	}

	a.configDir, err = paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	a.config, err = loadConfig(a.configDir)
	if err != nil {
		return err
	}
	if a.flags.url == "" {
		a.flags.url = a.config.GetString(cfgKeyURL)
	}
	if a.flags.token == "" {
		a.flags.token = a.config.GetString(cfgKeyToken)
	}
	return nil
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	os.Exit(run(NewRootCmd(), os.Args[1:], os.Stderr))
}

// run executes root with args and returns the process exit code.
func run(root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return exitSuccess
	}
	fmt.Fprintln(stderr, "Error:", err)
	return exitCode(err)
}

// cliError carries an explicit exit code.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func userError(err error) error {
	return &cliError{code: exitUserError, err: err}
}

// exitCode maps err to an exit code. Registry faults the caller can fix
// are user errors; everything else is a system error.
func exitCode(err error) int {
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	switch types.CodeOf(err) {
	case types.CodeNotFound, types.CodeAlreadyExists, types.CodeInvalidArgument,
		types.CodeUnknownWord, types.CodeInvalidRegion, types.CodeUnauthorized:
		return exitUserError
	}
	return exitSysError
}
