package output

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	// Registers the pure-Go "sqlite" database/sql driver.
	_ "modernc.org/sqlite"

	"github.com/recordsift/recordsift/internal/errhandling"
	"github.com/recordsift/recordsift/internal/logger"
	"github.com/recordsift/recordsift/pkg/job"
	"github.com/recordsift/recordsift/pkg/table"
)

// DefaultSQLiteTable is the table name used when none is configured.
const DefaultSQLiteTable = "records"

const sqliteDriver = "sqlite"

// SQLiteOutput writes a table into a new SQLite database file, one TEXT
// column per field.
type SQLiteOutput struct {
	path      string
	tableName string
}

// NewSQLiteOutputFromConfig creates a SQLite output module from configuration.
func NewSQLiteOutputFromConfig(cfg *job.ModuleConfig) (*SQLiteOutput, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	return NewSQLiteOutput(cfg.String("path", ""), cfg.String("table", DefaultSQLiteTable))
}

// NewSQLiteOutput creates a SQLite output module. An empty path derives
// "<default output>.db".
func NewSQLiteOutput(path, tableName string) (*SQLiteOutput, error) {
	if path == "" {
		path = strings.TrimSuffix(job.DefaultOutputPath, ".csv") + ".db"
	}
	if tableName == "" {
		tableName = DefaultSQLiteTable
	}
	if strings.ContainsRune(tableName, 0) {
		return nil, errhandling.NewConfigError(fmt.Sprintf("invalid sqlite table name %q", tableName), nil)
	}
	return &SQLiteOutput{path: path, tableName: tableName}, nil
}

// Destination returns the database path.
func (o *SQLiteOutput) Destination() string {
	return o.path
}

// Send creates the database in a temp file, inserts every row inside one
// transaction and renames the file over the destination.
func (o *SQLiteOutput) Send(ctx context.Context, tbl *table.Table) (int, error) {
	start := time.Now()

	f, err := createAtomic(o.path)
	if err != nil {
		return 0, err
	}
	tmp := f.Name()
	// The driver opens the file itself.
	if err := f.File.Close(); err != nil {
		_ = os.Remove(tmp)
		return 0, errhandling.NewIOError(o.path, "closing temp file: "+err.Error(), err)
	}

	n, err := o.write(ctx, tmp, tbl)
	if err != nil {
		removeSQLiteFiles(tmp)
		return 0, err
	}
	if err := renameInto(tmp, o.path); err != nil {
		removeSQLiteFiles(tmp)
		return 0, err
	}

	logger.Info("records written",
		slog.String("module_type", "sqlite"),
		slog.String("path", o.path),
		slog.String("table", o.tableName),
		slog.Int("records", n),
		slog.Duration("duration", time.Since(start)),
	)
	return n, nil
}

func (o *SQLiteOutput) write(ctx context.Context, dbPath string, tbl *table.Table) (int, error) {
	db, err := sql.Open(sqliteDriver, dbPath)
	if err != nil {
		return 0, errhandling.NewIOError(o.path, "opening database: "+err.Error(), err)
	}
	defer func() { _ = db.Close() }()

	columns := sqliteColumns(tbl.Columns)
	if len(columns) == 0 {
		return 0, errhandling.NewSchemaError(o.path, "", "record table has no columns")
	}

	if _, err := db.ExecContext(ctx, createTableSQL(o.tableName, columns)); err != nil {
		return 0, errhandling.NewIOError(o.path, "creating table: "+err.Error(), err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errhandling.NewIOError(o.path, "beginning transaction: "+err.Error(), err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertSQL(o.tableName, columns))
	if err != nil {
		_ = tx.Rollback()
		return 0, errhandling.NewIOError(o.path, "preparing insert: "+err.Error(), err)
	}
	defer func() { _ = stmt.Close() }()

	args := make([]any, len(columns))
	for i, row := range tbl.Rows {
		for c := range columns {
			args[c] = row.Cell(c)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			_ = tx.Rollback()
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			return 0, errhandling.NewIOError(o.path, fmt.Sprintf("inserting record %d: %v", i, err), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errhandling.NewIOError(o.path, "committing transaction: "+err.Error(), err)
	}
	return tbl.Len(), nil
}

// Preview describes the database Send would write.
func (o *SQLiteOutput) Preview(tbl *table.Table, sampleRows int) *job.OutputPreview {
	p := preview("sqlite", o.path, tbl, false, sampleRows)
	p.Columns = sqliteColumns(tbl.Columns)
	return p
}

// Close releases resources (no-op, the database is closed by Send).
func (o *SQLiteOutput) Close() error {
	return nil
}

// sqliteColumns names empty header cells col_<n> and suffixes repeated names
// so every column is a distinct identifier.
func sqliteColumns(columns []string) []string {
	out := make([]string, len(columns))
	used := make(map[string]bool, len(columns))
	for i, c := range columns {
		name := strings.TrimSpace(c)
		if name == "" {
			name = "col_" + strconv.Itoa(i)
		}
		base := name
		for n := 2; used[strings.ToLower(name)]; n++ {
			name = base + "_" + strconv.Itoa(n)
		}
		used[strings.ToLower(name)] = true
		out[i] = name
	}
	return out
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func createTableSQL(tableName string, columns []string) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = quoteIdent(c) + " TEXT"
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(tableName), strings.Join(defs, ", "))
}

func insertSQL(tableName string, columns []string) string {
	names := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		names[i] = quoteIdent(c)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(tableName), strings.Join(names, ", "), strings.Join(marks, ", "))
}

// removeSQLiteFiles removes a database file and its rollback journal.
func removeSQLiteFiles(path string) {
	_ = os.Remove(path)
	_ = os.Remove(path + "-journal")
}

// Verify SQLiteOutput implements PreviewableModule
var _ PreviewableModule = (*SQLiteOutput)(nil)
