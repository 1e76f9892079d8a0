package main

import (
	"context"
	"errors"
	"io"
	"os"
	"syscall"

	"github.com/palantir/stacktrace"
	"github.com/spf13/cobra"

	"github.com/pgseldump/pgseldump/internal/config"
	"github.com/pgseldump/pgseldump/internal/log"
	"github.com/pgseldump/pgseldump/internal/orchestrator"
	"github.com/pgseldump/pgseldump/internal/reader"
	"github.com/pgseldump/pgseldump/internal/rulefile"
	"github.com/pgseldump/pgseldump/internal/rules"
	"github.com/pgseldump/pgseldump/internal/writer"
)

// errBrokenPipe marks a dump that failed because the output sink (a
// downstream consumer's stdin) closed early, reported with a distinct
// exit code per spec §6.4 rather than folded into the generic error path.
var errBrokenPipe = errors.New("pgseldump: broken output pipe")

func newDumpCmd() *cobra.Command {
	var (
		dsn      string
		outfile  string
		test     bool
		connName string
	)

	cmd := &cobra.Command{
		Use:   "dump [config.yaml ...]",
		Short: "Dump selected rows from a PostgreSQL database as SQL",
		Long: "Dump selected rows from a PostgreSQL database as SQL.\n\n" +
			"Rule files may be given as positional arguments, or omitted when\n" +
			"--connection refers to a connection created with --rule-file,\n" +
			"in which case that connection's default rule files are used.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			quiet, _ = cmd.Flags().GetBool("quiet")
			verbose, _ = cmd.Flags().GetBool("verbose")
			log.SetQuiet(quiet)
			log.SetVerbose(verbose)
			return runDump(cmd.Context(), args, dsn, outfile, connName, test)
		},
	}

	cmd.Flags().StringVar(&dsn, "dsn", "", "database connection string")
	cmd.Flags().StringVarP(&outfile, "outfile", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&connName, "connection", "", "named connection from `pgseldump connection list` (used if --dsn is empty)")
	cmd.Flags().BoolVar(&test, "test", false, "validate the plan without emitting a dump")
	cmd.Flags().BoolP("quiet", "q", false, "suppress info-level logging")
	cmd.Flags().BoolP("verbose", "v", false, "enable verbose logging")

	return cmd
}

func runDump(ctx context.Context, configFiles []string, dsn, outfile, connName string, test bool) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return stacktrace.Propagate(err, "failed to load config")
	}

	resolvedDSN, err := resolveDSN(cfg, dsn, connName)
	if err != nil {
		return err
	}

	configFiles, err = resolveRuleFiles(cfg, configFiles, connName)
	if err != nil {
		return err
	}

	var allRules []*rulesPack
	for _, path := range configFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return stacktrace.Propagate(err, "failed to read config file %s", path)
		}
		rs, err := rulefile.Load(path, data)
		if err != nil {
			return stacktrace.Propagate(err, "failed to load rule file %s", path)
		}
		allRules = append(allRules, &rulesPack{path: path, rules: rs})
	}

	r, err := reader.New(resolvedDSN)
	if err != nil {
		return stacktrace.Propagate(err, "failed to connect to database")
	}
	defer r.Close()

	o := orchestrator.New(r)
	if err := o.LoadSchema(ctx); err != nil {
		return err
	}
	for _, pack := range allRules {
		o.AddRules(pack.rules)
	}

	if err := o.Plan(); err != nil {
		return err
	}
	for _, w := range o.Warnings() {
		log.Warn("%s", w)
	}

	out, closeOut, err := openOutput(outfile)
	if err != nil {
		return err
	}
	defer closeOut()

	var w writer.Writer
	if test {
		w = writer.NewDummy()
	} else {
		w = writer.New(out)
	}

	if err := o.Emit(ctx, w); err != nil {
		if isBrokenPipe(err) {
			return errBrokenPipe
		}
		return err
	}

	return nil
}

type rulesPack struct {
	path  string
	rules []*rules.Rule
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, stacktrace.Propagate(err, "failed to create output file %s", path)
	}
	return f, func() { f.Close() }, nil
}

func resolveDSN(cfg *config.Config, dsn, connName string) (string, error) {
	if dsn != "" {
		return dsn, nil
	}

	if connName != "" {
		conn := cfg.GetConnection(connName)
		if conn == nil {
			return "", stacktrace.NewError("connection not found: %s", connName)
		}
		return conn.URL, nil
	}

	conn := cfg.GetDefaultConnection()
	if conn == nil {
		return "", stacktrace.NewError("no --dsn given and no default connection configured")
	}
	return conn.URL, nil
}

// resolveRuleFiles returns configFiles unchanged when the operator gave
// rule files explicitly; otherwise it falls back to the default rule files
// recorded against the named connection (or, absent --connection, the
// default connection), so `pgseldump dump --connection prod` can be run
// with no further arguments once that connection was created with
// --rule-file.
func resolveRuleFiles(cfg *config.Config, configFiles []string, connName string) ([]string, error) {
	if len(configFiles) > 0 {
		return configFiles, nil
	}

	var conn *config.Connection
	if connName != "" {
		conn = cfg.GetConnection(connName)
	} else {
		conn = cfg.GetDefaultConnection()
	}
	if conn == nil || len(conn.DefaultRuleFiles) == 0 {
		return nil, stacktrace.NewError("no rule files given and no default rule files configured for this connection")
	}
	return conn.DefaultRuleFiles, nil
}

func isBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrClosed)
}
