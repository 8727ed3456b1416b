// Package graftbun generates graft accessor sets backed by Bun for SQL
// databases (PostgreSQL, MySQL, SQLite).
package graftbun

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/graftdb/graft"
)

// =====================================
// Provider Implementation
// =====================================

// Provider implements graft.Provider using Bun.
type Provider struct {
	db     bun.IDB
	root   *bun.DB
	config graft.Config
}

// Factory implements graft.ProviderFactory.
type Factory struct{}

// Create creates a new Bun provider instance.
func (f *Factory) Create(config graft.Config) (graft.Provider, error) {
	var (
		sqlDB *sql.DB
		err   error
	)
	switch strings.ToLower(config.Driver) {
	case "postgres", "postgresql":
		sqlDB = sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(postgresDSN(config))))
	case "pq":
		// lib/pq through database/sql, for environments standardized on it.
		sqlDB, err = sql.Open("postgres", postgresDSN(config))
	case "mysql":
		sqlDB, err = createMySQLConnection(config)
	case "sqlite", "sqlite3":
		sqlDB, err = sql.Open("sqlite3", config.Database)
	default:
		return nil, graft.Error{
			Type:    graft.ErrorTypeUnsupported,
			Message: fmt.Sprintf("unsupported driver: %s", config.Driver),
		}
	}
	if err != nil {
		return nil, graft.Error{
			Type:    graft.ErrorTypeConnection,
			Message: "failed to connect to database",
			Cause:   err,
		}
	}

	// Configure connection pool
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}
	if config.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	}

	var bunDB *bun.DB
	switch strings.ToLower(config.Driver) {
	case "postgres", "postgresql", "pq":
		bunDB = bun.NewDB(sqlDB, pgdialect.New())
	case "mysql":
		bunDB = bun.NewDB(sqlDB, mysqldialect.New())
	case "sqlite", "sqlite3":
		bunDB = bun.NewDB(sqlDB, sqlitedialect.New())
	}

	// Query logging hook
	if options, ok := config.Options["bun"]; ok {
		if bunOpts, ok := options.(map[string]interface{}); ok {
			if logLevel, ok := bunOpts["log_level"].(string); ok && logLevel != "silent" {
				bunDB.AddQueryHook(bundebug.NewQueryHook(
					bundebug.WithVerbose(logLevel == "debug"),
				))
			}
		}
	}

	return &Provider{db: bunDB, root: bunDB, config: config}, nil
}

// SupportedDrivers returns the list of supported database drivers.
func (f *Factory) SupportedDrivers() []string {
	return []string{"postgres", "postgresql", "pq", "mysql", "sqlite", "sqlite3"}
}

// postgresDSN builds a PostgreSQL connection string.
func postgresDSN(config graft.Config) string {
	if config.ConnectionURL != "" {
		return config.ConnectionURL
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		config.Username, config.Password, config.Host, config.Port, config.Database)
	if config.SSL.Enabled {
		dsn = strings.Replace(dsn, "sslmode=disable", "sslmode="+config.SSL.Mode, 1)
	}
	return dsn
}

// createMySQLConnection creates a MySQL connection.
func createMySQLConnection(config graft.Config) (*sql.DB, error) {
	if config.ConnectionURL != "" {
		return sql.Open("mysql", config.ConnectionURL)
	}
	mysqlConfig := mysql.Config{
		User:   config.Username,
		Passwd: config.Password,
		Net:    "tcp",
		Addr:   fmt.Sprintf("%s:%d", config.Host, config.Port),
		DBName: config.Database,
	}
	return sql.Open("mysql", mysqlConfig.FormatDSN())
}

// DB exposes the underlying Bun database, e.g. for schema setup.
func (p *Provider) DB() *bun.DB {
	return p.root
}

// WithTx returns a provider whose accessors run inside the given
// transaction. The engines manage no transactions themselves, so callers
// wanting an atomic Save or Delete build the model's accessors from a
// transaction-bound provider.
func (p *Provider) WithTx(tx bun.Tx) *Provider {
	return &Provider{db: tx, root: p.root, config: p.config}
}

// Health checks the database connection.
func (p *Provider) Health() error {
	if err := p.root.Ping(); err != nil {
		return graft.Error{
			Type:    graft.ErrorTypeConnection,
			Message: "database ping failed",
			Cause:   err,
		}
	}
	return nil
}

// Close closes the database connection.
func (p *Provider) Close() error {
	return p.root.Close()
}

// Info returns provider metadata.
func (p *Provider) Info() graft.ProviderInfo {
	return graft.ProviderInfo{
		Name:         "bun",
		Version:      "1.0.0",
		DatabaseType: graft.DatabaseTypeSQL,
		Features: []graft.Feature{
			graft.FeatureTransactions,
			graft.FeatureJoins,
			graft.FeatureGeneratedKeys,
			graft.FeaturePartialUpdates,
		},
	}
}

// =====================================
// Accessor Generation
// =====================================

// Accessors generates the single-table accessor set for a table.
func (p *Provider) Accessors(table, idColumn string) graft.Accessors {
	return graft.Accessors{
		Read:   p.readFunc(table, idColumn),
		Insert: p.insertFunc(table, idColumn),
		Update: p.updateFunc(table, idColumn),
		Delete: p.deleteFunc(table, idColumn),
	}
}

func (p *Provider) readFunc(table, idColumn string) graft.ReadFunc {
	return func(ctx context.Context, id any) (graft.Row, error) {
		var row map[string]any
		err := p.db.NewSelect().
			Table(table).
			Where("? = ?", bun.Ident(idColumn), id).
			Limit(1).
			Scan(ctx, &row)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return graft.Row(row), nil
	}
}

func (p *Provider) insertFunc(table, idColumn string) graft.InsertFunc {
	return func(ctx context.Context, row graft.Row) (graft.Row, error) {
		values := map[string]any(row.Clone())
		out := row.Clone()
		query := p.db.NewInsert().
			Model(&values).
			TableExpr("?", bun.Ident(table))

		// Caller-assigned ids pass through untouched.
		if id, ok := row[idColumn]; ok && id != nil {
			_, err := query.Exec(ctx)
			return out, err
		}

		if p.root.Dialect().Name() == dialect.MySQL {
			res, err := query.Exec(ctx)
			if err != nil {
				return nil, err
			}
			id, err := res.LastInsertId()
			if err != nil {
				return nil, err
			}
			out[idColumn] = id
			return out, nil
		}

		var id any
		if _, err := query.Returning("?", bun.Ident(idColumn)).Exec(ctx, &id); err != nil {
			return nil, err
		}
		out[idColumn] = id
		return out, nil
	}
}

func (p *Provider) updateFunc(table, idColumn string) graft.UpdateFunc {
	return func(ctx context.Context, row graft.Row) (graft.Row, error) {
		id, ok := row[idColumn]
		if !ok || id == nil {
			return nil, graft.Error{
				Type:    graft.ErrorTypePrecondition,
				Message: fmt.Sprintf("update on %q without %q field", table, idColumn),
			}
		}
		query := p.db.NewUpdate().
			Table(table).
			Where("? = ?", bun.Ident(idColumn), id)
		for _, column := range sortedColumns(row) {
			if column == idColumn {
				continue
			}
			query = query.Set("? = ?", bun.Ident(column), row[column])
		}
		if _, err := query.Exec(ctx); err != nil {
			return nil, err
		}
		return row, nil
	}
}

func (p *Provider) deleteFunc(table, idColumn string) graft.DeleteFunc {
	return func(ctx context.Context, id any) (int64, error) {
		res, err := p.db.NewDelete().
			Table(table).
			Where("? = ?", bun.Ident(idColumn), id).
			Exec(ctx)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	}
}

// ForeignKeyQuery selects the table's rows whose foreign-key column equals
// the owner id.
func (p *Provider) ForeignKeyQuery(table, fkColumn string) graft.QueryFunc {
	return func(ctx context.Context, id any) ([]graft.Row, error) {
		var rows []map[string]any
		err := p.db.NewSelect().
			Table(table).
			Where("? = ?", bun.Ident(fkColumn), id).
			Scan(ctx, &rows)
		if err != nil {
			return nil, err
		}
		return toRows(rows), nil
	}
}

// LinkQuery selects the table's rows joined through the link table. Only the
// target table's columns are selected, so the link table's key columns never
// leak into result rows.
func (p *Provider) LinkQuery(table, idColumn, linkTable, ownColumn, otherColumn string) graft.QueryFunc {
	return func(ctx context.Context, id any) ([]graft.Row, error) {
		var rows []map[string]any
		err := p.db.NewSelect().
			ColumnExpr("?.*", bun.Ident(table)).
			Table(table).
			Join("JOIN ? ON ?.? = ?.?",
				bun.Ident(linkTable),
				bun.Ident(linkTable), bun.Ident(otherColumn),
				bun.Ident(table), bun.Ident(idColumn)).
			Where("?.? = ?", bun.Ident(linkTable), bun.Ident(ownColumn), id).
			Scan(ctx, &rows)
		if err != nil {
			return nil, err
		}
		return toRows(rows), nil
	}
}

// LinkUpdater performs full link replacement on the link table.
func (p *Provider) LinkUpdater(linkTable, ownColumn, otherColumn, targetIDColumn string) graft.LinkUpdateFunc {
	return func(ctx context.Context, selfID any, children []graft.Row) error {
		_, err := p.db.NewDelete().
			Table(linkTable).
			Where("? = ?", bun.Ident(ownColumn), selfID).
			Exec(ctx)
		if err != nil {
			return err
		}
		for _, child := range children {
			link := map[string]any{
				ownColumn:   selfID,
				otherColumn: child[targetIDColumn],
			}
			_, err := p.db.NewInsert().
				Model(&link).
				TableExpr("?", bun.Ident(linkTable)).
				Exec(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	}
}

// =====================================
// Helper Functions
// =====================================

// sortedColumns keeps statement text stable across calls.
func sortedColumns(row graft.Row) []string {
	columns := make([]string, 0, len(row))
	for column := range row {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns
}

func toRows(rows []map[string]any) []graft.Row {
	out := make([]graft.Row, len(rows))
	for i, row := range rows {
		out[i] = graft.Row(row)
	}
	return out
}
