package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/palantir/stacktrace"
	"github.com/spf13/cobra"

	"github.com/pgseldump/pgseldump/internal/config"
	"github.com/pgseldump/pgseldump/internal/log"
)

var (
	debugMode bool
	quiet     bool
	verbose   bool
)

const version = "0.1.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errBrokenPipe) {
			os.Exit(128 + int(syscall.SIGPIPE))
		}

		if debugMode {
			fmt.Fprintln(os.Stderr, err)
		} else {
			msg := stacktrace.RootCause(err).Error()
			msg = strings.TrimPrefix(msg, "Error: ")
			fmt.Fprintln(os.Stderr, "Error:", msg)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "pgseldump",
	Short:        "Selective logical data dump tool for PostgreSQL",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debugMode {
			log.EnableDebugMode()
			log.Debug("debug mode enabled")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug mode with stack traces")

	rootCmd.AddCommand(newDumpCmd())
	rootCmd.AddCommand(newConnectionCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the pgseldump version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}

func newConnectionCmd() *cobra.Command {
	connectionCmd := &cobra.Command{
		Use:   "connection",
		Short: "Manage database connections",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new connection",
		RunE:  runCreateConnection,
	}
	createCmd.Flags().String("name", "", "connection name (required)")
	createCmd.Flags().String("url", "", "database URL (required)")
	createCmd.Flags().Bool("make-default", false, "set as default connection")
	createCmd.Flags().StringArray("rule-file", nil, "rule file to use by default for this connection (repeatable)")
	createCmd.MarkFlagRequired("name")
	createCmd.MarkFlagRequired("url")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all connections",
		RunE:  runListConnections,
	}

	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a connection",
		RunE:  runDeleteConnection,
	}
	deleteCmd.Flags().String("name", "", "connection name (required)")
	deleteCmd.MarkFlagRequired("name")

	makeDefaultCmd := &cobra.Command{
		Use:   "make-default",
		Short: "Set a connection as default",
		RunE:  runMakeDefaultConnection,
	}
	makeDefaultCmd.Flags().String("name", "", "connection name (required)")
	makeDefaultCmd.MarkFlagRequired("name")

	connectionCmd.AddCommand(createCmd, listCmd, deleteCmd, makeDefaultCmd)
	return connectionCmd
}

func runCreateConnection(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	url, _ := cmd.Flags().GetString("url")
	makeDefault, _ := cmd.Flags().GetBool("make-default")
	ruleFiles, _ := cmd.Flags().GetStringArray("rule-file")

	cfg, err := config.LoadConfig()
	if err != nil {
		return stacktrace.Propagate(err, "failed to load config")
	}

	if err := cfg.AddConnection(name, url, makeDefault); err != nil {
		return stacktrace.Propagate(err, "failed to add connection %s", name)
	}

	if len(ruleFiles) > 0 {
		if err := cfg.SetDefaultRuleFiles(name, ruleFiles); err != nil {
			return stacktrace.Propagate(err, "failed to set default rule files for %s", name)
		}
	}

	fmt.Printf("Added new connection: %s\n", name)
	return nil
}

func runListConnections(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return stacktrace.Propagate(err, "failed to load config")
	}

	if len(cfg.Connections) == 0 {
		fmt.Println("No connections configured")
		return nil
	}

	fmt.Println("Configured connections:")
	for _, conn := range cfg.Connections {
		defaultMark := " "
		if conn.IsDefault {
			defaultMark = "*"
		}
		fmt.Printf("%s %s: %s\n", defaultMark, conn.Name, conn.URL)
		if len(conn.DefaultRuleFiles) > 0 {
			fmt.Printf("    default rule files: %s\n", strings.Join(conn.DefaultRuleFiles, ", "))
		}
	}
	return nil
}

func runDeleteConnection(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")

	cfg, err := config.LoadConfig()
	if err != nil {
		return stacktrace.Propagate(err, "failed to load config")
	}

	if err := cfg.DeleteConnection(name); err != nil {
		return stacktrace.Propagate(err, "failed to delete connection")
	}

	fmt.Printf("Deleted connection: %s\n", name)
	return nil
}

func runMakeDefaultConnection(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")

	cfg, err := config.LoadConfig()
	if err != nil {
		return stacktrace.Propagate(err, "failed to load config")
	}

	if err := cfg.SetDefaultConnection(name); err != nil {
		return stacktrace.Propagate(err, "failed to set default connection")
	}

	fmt.Printf("Set %s as default connection\n", name)
	return nil
}
