package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rxsql/reactive"
	"github.com/roach88/rxsql/sqldeps"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	DBPath string
}

// ExecResult reports which table subscriptions a script invalidated.
type ExecResult struct {
	Database    string   `json:"database" yaml:"database"`
	Statements  int      `json:"statements" yaml:"statements"`
	Invalidated []string `json:"invalidated" yaml:"invalidated"`
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec <script.sql | ->",
		Short: "Run a SQL script and report invalidated tables",
		Long: `Run a SQL script through the reactive store.

Every table in the database (and every table the script writes) gets a
table-level subscription before the script runs; the command reports the
tables whose subscriptions were notified. Pass - to read the script from
stdin.

The database defaults to database.path from the configuration file.

Examples:
  rxsql exec --db app.db migrate.sql
  echo "DELETE FROM sessions" | rxsql exec --db app.db -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DBPath, "db", "", "path to SQLite database (overrides database.path)")

	return cmd
}

func runExec(ctx context.Context, opts *ExecOptions, source string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)
	cfg := opts.configuration()

	script, err := readScript(source, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read script", err)
	}

	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = cfg.Database.Path
	}
	storeOpts := append(cfg.StoreOptions(), reactive.WithLogger(opts.logger()))
	st, err := reactive.Open(dbPath, storeOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to open database %s", dbPath), err)
	}
	defer st.Close()

	tables, err := existingTables(ctx, st)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list tables", err)
	}
	tables.Union(sqldeps.ScriptWriteTables(script))
	formatter.VerboseLog("Watching %d table(s)", len(tables))

	notified := sqldeps.NewTableSet()
	for _, table := range tables.Sorted() {
		st.Subscribe([]string{table}, func() { notified.Add(table) })
	}

	if err := st.Exec(ctx, script); err != nil {
		if formatter.Structured() {
			_ = formatter.Error("E_SQL", err.Error(), nil)
		}
		return WrapExitError(ExitCommandError, "script failed", err)
	}

	result := ExecResult{
		Database:    dbPath,
		Statements:  len(sqldeps.SplitStatements(script)),
		Invalidated: notified.Sorted(),
	}
	if formatter.Structured() {
		return formatter.Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Executed %d statement(s) against %s\n", result.Statements, result.Database)
	fmt.Fprintf(w, "invalidated: %s\n", listOrNone(result.Invalidated))
	return nil
}

// readScript reads a file, or stdin when source is "-".
func readScript(source string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if source == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return "", err
	}
	script := string(data)
	if strings.TrimSpace(sqldeps.StripComments(script)) == "" {
		return "", fmt.Errorf("script %s is empty", source)
	}
	return script, nil
}

// existingTables lists the user tables of the store's database.
func existingTables(ctx context.Context, st *reactive.Store) (sqldeps.TableSet, error) {
	rows, err := st.Query(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		if name, ok := row["name"].(string); ok {
			names = append(names, name)
		}
	}
	return sqldeps.NewTableSet(names...), nil
}
