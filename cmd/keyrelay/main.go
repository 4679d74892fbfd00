package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"keyrelay/internal/cli"
	"keyrelay/internal/security"
)

// buildMeta holds version and build metadata (injectable via ldflags).
type buildMeta struct {
	Version string
	GoOS    string
	GoArch  string
}

func newBuildMeta(version, goos, goarch string) buildMeta {
	if goos == "" {
		goos = runtime.GOOS
	}
	if goarch == "" {
		goarch = runtime.GOARCH
	}
	return buildMeta{Version: version, GoOS: goos, GoArch: goarch}
}

func (m buildMeta) String() string {
	return fmt.Sprintf("keyrelay %s %s/%s", m.Version, m.GoOS, m.GoArch)
}

// exitOn turns a cli exit code into a command error.
func exitOn(code int) error {
	if code != 0 {
		return exitCodeErr(code)
	}
	return nil
}

func configSource(cmd *cobra.Command) cli.ConfigSource {
	path, _ := cmd.Flags().GetString("config")
	return cli.ConfigSource{Path: path}
}

func newRootCommand(bm buildMeta) *cobra.Command {
	root := &cobra.Command{
		Use:           "keyrelay",
		Short:         "API key pool relay",
		Long:          "Keyrelay rotates requests across a pool of API keys and quarantines keys the upstream rejects.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion, _ := cmd.Flags().GetBool("version"); showVersion {
				fmt.Fprintln(cmd.OutOrStdout(), bm.String())
				return nil
			}
			return runDaemon(cmd, configSource(cmd), daemonShutdownCh)
		},
	}
	root.Flags().BoolP("version", "V", false, "print version and build metadata")
	root.PersistentFlags().StringP("config", "c", "", "config file (default $KEYRELAY_CONFIG or keyrelay.json)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the gateway daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, configSource(cmd), daemonShutdownCh)
		},
	})

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Check config, keys, gateway and ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fix, _ := cmd.Flags().GetBool("fix")
			return exitOn(cli.RunCheck(cli.CheckOptions{ConfigSource: configSource(cmd), Fix: fix}, cmd.OutOrStdout(), cmd.ErrOrStderr()))
		},
	}
	checkCmd.Flags().Bool("fix", false, "write default config if missing")
	root.AddCommand(checkCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show pool status with masked keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.StatusOptions{ConfigSource: configSource(cmd)}
			opts.Addr, _ = cmd.Flags().GetString("addr")
			opts.Local, _ = cmd.Flags().GetBool("local")
			opts.JSON, _ = cmd.Flags().GetBool("json")
			return exitOn(cli.RunStatus(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr()))
		},
	}
	statusCmd.Flags().String("addr", "", "gateway base URL (default http://127.0.0.1:<gateway.port>)")
	statusCmd.Flags().Bool("local", false, "describe configured keys without asking the gateway")
	statusCmd.Flags().Bool("json", false, "print JSON")
	root.AddCommand(statusCmd)

	root.AddCommand(&cobra.Command{
		Use:   "complete <prompt>",
		Short: "Send one prompt through the key pool",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.CompleteOptions{ConfigSource: configSource(cmd), Prompt: strings.Join(args, " ")}
			return exitOn(cli.RunComplete(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr()))
		},
	})

	root.AddCommand(newConfigCommand(), newSecretsCommand(), newLedgerCommand())
	return root
}

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{Use: "config", Short: "Read or edit the config file"}
	run := func(action string) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			opts := cli.ConfigOptions{ConfigSource: configSource(cmd), Action: action}
			if len(args) > 0 {
				opts.Key = args[0]
			}
			if len(args) > 1 {
				opts.Value = args[1]
			}
			return exitOn(cli.RunConfig(opts, cmd.OutOrStdout(), cmd.ErrOrStderr()))
		}
	}
	configCmd.AddCommand(
		&cobra.Command{Use: "get <key>", Short: "Print a value by dotted key", Args: cobra.ExactArgs(1), RunE: run("get")},
		&cobra.Command{Use: "set <key> <value>", Short: "Set a value by dotted key", Args: cobra.ExactArgs(2), RunE: run("set")},
		&cobra.Command{Use: "unset <key>", Short: "Remove a value by dotted key", Args: cobra.ExactArgs(1), RunE: run("unset")},
		&cobra.Command{Use: "schema", Short: "Print the config JSON Schema", Args: cobra.NoArgs, RunE: run("schema")},
	)
	return configCmd
}

func newSecretsCommand() *cobra.Command {
	secretsCmd := &cobra.Command{Use: "secrets", Short: "Store API keys and tokens encrypted, outside the config"}
	run := func(action string) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			opts := cli.SecretsOptions{Action: action, Stdin: cmd.InOrStdin()}
			if len(args) > 0 {
				opts.Name = args[0]
			}
			if len(args) > 1 {
				opts.Value = args[1]
			}
			if cmd.Flags().Lookup("reveal") != nil {
				opts.Reveal, _ = cmd.Flags().GetBool("reveal")
			}
			return exitOn(cli.RunSecrets(opts, cmd.OutOrStdout(), cmd.ErrOrStderr()))
		}
	}
	getCmd := &cobra.Command{Use: "get <name>", Short: "Print a secret, keys masked", Args: cobra.ExactArgs(1), RunE: run("get")}
	getCmd.Flags().Bool("reveal", false, "print the raw value")
	secretsCmd.AddCommand(
		&cobra.Command{Use: "set <name> [value|-]", Short: "Store a secret; reads stdin when value is - or omitted", Args: cobra.RangeArgs(1, 2), RunE: run("set")},
		getCmd,
		&cobra.Command{Use: "delete <name>", Short: "Remove a secret", Args: cobra.ExactArgs(1), RunE: run("delete")},
		&cobra.Command{Use: "list", Short: "List secret names", Args: cobra.NoArgs, RunE: run("list")},
	)
	return secretsCmd
}

func newLedgerCommand() *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "List recorded key quarantines, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.LedgerOptions{ConfigSource: configSource(cmd)}
			opts.Limit, _ = cmd.Flags().GetInt("limit")
			opts.JSON, _ = cmd.Flags().GetBool("json")
			return exitOn(cli.RunLedger(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr()))
		},
	}
	ledgerCmd.Flags().Int("limit", 20, "events to show (0 for all)")
	ledgerCmd.Flags().Bool("json", false, "print JSON")
	return ledgerCmd
}

func getVersion() string {
	if version != "" {
		return version
	}
	b, err := os.ReadFile("VERSION")
	if err != nil {
		return "dev"
	}
	return strings.TrimSpace(string(b))
}

// version is set at build time via ldflags for build metadata, e.g.:
//
//	go build -ldflags "-X main.version=0.3.0" -o keyrelay ./cmd/keyrelay
var version string

// exitCodeErr carries an exit code for the process. When returned from a command, runApp exits with that code.
type exitCodeErr int

func (e exitCodeErr) Error() string { return fmt.Sprintf("exit %d", int(e)) }
func (e exitCodeErr) ExitCode() int { return int(e) }

// runApp runs the root command with the given args and returns the exit code (0, 1, or 2).
func runApp(args []string) int {
	defer memguard.Purge()

	bm := newBuildMeta(version, "", "")
	if bm.Version == "" {
		bm.Version = getVersion()
	}
	root := newRootCommand(bm)
	root.SetArgs(args[1:])
	if err := root.ExecuteContext(context.Background()); err != nil {
		if errors.Is(err, security.ErrRunningAsRoot) {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		var ec interface{ ExitCode() int }
		if errors.As(err, &ec) {
			return ec.ExitCode()
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
