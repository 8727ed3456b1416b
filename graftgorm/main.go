// Package graftgorm generates graft accessor sets backed by GORM for SQL
// databases (PostgreSQL, MySQL, SQLite, SQL Server).
package graftgorm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/graftdb/graft"
)

// =====================================
// Provider Implementation
// =====================================

// Provider implements graft.Provider using GORM.
type Provider struct {
	db     *gorm.DB
	config graft.Config
}

// Factory implements graft.ProviderFactory.
type Factory struct{}

// Create creates a new GORM provider instance.
func (f *Factory) Create(config graft.Config) (graft.Provider, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
	if options, ok := config.Options["gorm"]; ok {
		if gormOpts, ok := options.(map[string]interface{}); ok {
			if logLevel, ok := gormOpts["log_level"].(string); ok {
				switch logLevel {
				case "silent":
					gormConfig.Logger = logger.Default.LogMode(logger.Silent)
				case "error":
					gormConfig.Logger = logger.Default.LogMode(logger.Error)
				case "warn":
					gormConfig.Logger = logger.Default.LogMode(logger.Warn)
				case "info":
					gormConfig.Logger = logger.Default.LogMode(logger.Info)
				}
			}
		}
	}

	var dialector gorm.Dialector
	switch strings.ToLower(config.Driver) {
	case "postgres", "postgresql":
		dialector = postgres.Open(postgresDSN(config))
	case "mysql":
		dialector = mysql.Open(mysqlDSN(config))
	case "sqlite", "sqlite3":
		dialector = sqlite.Open(config.Database)
	case "sqlserver", "mssql":
		dialector = sqlserver.Open(sqlserverDSN(config))
	default:
		return nil, graft.Error{
			Type:    graft.ErrorTypeUnsupported,
			Message: fmt.Sprintf("unsupported driver: %s", config.Driver),
		}
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, graft.Error{
			Type:    graft.ErrorTypeConnection,
			Message: "failed to connect to database",
			Cause:   err,
		}
	}

	sqlDB, err := db.DB()
	if err == nil {
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
	}

	return &Provider{db: db, config: config}, nil
}

// SupportedDrivers returns the list of supported database drivers.
func (f *Factory) SupportedDrivers() []string {
	return []string{"gorm-postgres", "gorm-mysql", "gorm-sqlite", "gorm-sqlserver"}
}

func postgresDSN(config graft.Config) string {
	if config.ConnectionURL != "" {
		return config.ConnectionURL
	}
	sslMode := "disable"
	if config.SSL.Enabled {
		sslMode = config.SSL.Mode
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.Username, config.Password, config.Database, sslMode)
}

func mysqlDSN(config graft.Config) string {
	if config.ConnectionURL != "" {
		return config.ConnectionURL
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		config.Username, config.Password, config.Host, config.Port, config.Database)
}

func sqlserverDSN(config graft.Config) string {
	if config.ConnectionURL != "" {
		return config.ConnectionURL
	}
	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s",
		config.Username, config.Password, config.Host, config.Port, config.Database)
}

// DB exposes the underlying GORM database, e.g. for schema setup.
func (p *Provider) DB() *gorm.DB {
	return p.db
}

// Health checks the database connection.
func (p *Provider) Health() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return graft.Error{Type: graft.ErrorTypeConnection, Message: "failed to get database instance", Cause: err}
	}
	if err := sqlDB.Ping(); err != nil {
		return graft.Error{Type: graft.ErrorTypeConnection, Message: "database ping failed", Cause: err}
	}
	return nil
}

// Close closes the database connection.
func (p *Provider) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Info returns provider metadata.
func (p *Provider) Info() graft.ProviderInfo {
	return graft.ProviderInfo{
		Name:         "gorm",
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
		Read: func(ctx context.Context, id any) (graft.Row, error) {
			var row map[string]any
			err := p.db.WithContext(ctx).
				Table(table).
				Where(fmt.Sprintf("%s = ?", idColumn), id).
				Take(&row).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			return graft.Row(row), nil
		},
		Insert: p.insertFunc(table, idColumn),
		Update: func(ctx context.Context, row graft.Row) (graft.Row, error) {
			id, ok := row[idColumn]
			if !ok || id == nil {
				return nil, graft.Error{
					Type:    graft.ErrorTypePrecondition,
					Message: fmt.Sprintf("update on %q without %q field", table, idColumn),
				}
			}
			updates := make(map[string]any, len(row))
			for column, value := range row {
				if column == idColumn {
					continue
				}
				updates[column] = value
			}
			if len(updates) == 0 {
				return row, nil
			}
			err := p.db.WithContext(ctx).
				Table(table).
				Where(fmt.Sprintf("%s = ?", idColumn), id).
				Updates(updates).Error
			if err != nil {
				return nil, err
			}
			return row, nil
		},
		Delete: func(ctx context.Context, id any) (int64, error) {
			result := p.db.WithContext(ctx).
				Table(table).
				Where(fmt.Sprintf("%s = ?", idColumn), id).
				Delete(nil)
			return result.RowsAffected, result.Error
		},
	}
}

// insertFunc inserts map rows. Generated keys come back through RETURNING
// where the dialect supports it; on MySQL the insert runs in a short
// transaction so LAST_INSERT_ID() is read on the same connection.
func (p *Provider) insertFunc(table, idColumn string) graft.InsertFunc {
	return func(ctx context.Context, row graft.Row) (graft.Row, error) {
		values := map[string]any(row.Clone())

		if id, ok := row[idColumn]; ok && id != nil {
			err := p.db.WithContext(ctx).Table(table).Create(values).Error
			if err != nil {
				return nil, err
			}
			return graft.Row(values), nil
		}

		if p.db.Dialector.Name() == "mysql" {
			err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				if err := tx.Table(table).Create(values).Error; err != nil {
					return err
				}
				var id int64
				if err := tx.Raw("SELECT LAST_INSERT_ID()").Scan(&id).Error; err != nil {
					return err
				}
				values[idColumn] = id
				return nil
			})
			if err != nil {
				return nil, err
			}
			return graft.Row(values), nil
		}

		err := p.db.WithContext(ctx).
			Table(table).
			Clauses(clause.Returning{Columns: []clause.Column{{Name: idColumn}}}).
			Create(&values).Error
		if err != nil {
			return nil, err
		}
		return graft.Row(values), nil
	}
}

// ForeignKeyQuery selects the table's rows whose foreign-key column equals
// the owner id.
func (p *Provider) ForeignKeyQuery(table, fkColumn string) graft.QueryFunc {
	return func(ctx context.Context, id any) ([]graft.Row, error) {
		var rows []map[string]any
		err := p.db.WithContext(ctx).
			Table(table).
			Where(fmt.Sprintf("%s = ?", fkColumn), id).
			Find(&rows).Error
		if err != nil {
			return nil, err
		}
		return toRows(rows), nil
	}
}

// LinkQuery selects the table's rows joined through the link table,
// selecting only the target table's columns.
func (p *Provider) LinkQuery(table, idColumn, linkTable, ownColumn, otherColumn string) graft.QueryFunc {
	return func(ctx context.Context, id any) ([]graft.Row, error) {
		var rows []map[string]any
		err := p.db.WithContext(ctx).
			Table(table).
			Select(table+".*").
			Joins(fmt.Sprintf("JOIN %s ON %s.%s = %s.%s",
				linkTable, linkTable, otherColumn, table, idColumn)).
			Where(fmt.Sprintf("%s.%s = ?", linkTable, ownColumn), id).
			Find(&rows).Error
		if err != nil {
			return nil, err
		}
		return toRows(rows), nil
	}
}

// LinkUpdater performs full link replacement on the link table.
func (p *Provider) LinkUpdater(linkTable, ownColumn, otherColumn, targetIDColumn string) graft.LinkUpdateFunc {
	return func(ctx context.Context, selfID any, children []graft.Row) error {
		db := p.db.WithContext(ctx)
		err := db.Table(linkTable).
			Where(fmt.Sprintf("%s = ?", ownColumn), selfID).
			Delete(nil).Error
		if err != nil {
			return err
		}
		for _, child := range children {
			link := map[string]any{
				ownColumn:   selfID,
				otherColumn: child[targetIDColumn],
			}
			if err := db.Table(linkTable).Create(link).Error; err != nil {
				return err
			}
		}
		return nil
	}
}

// =====================================
// Helper Functions
// =====================================

func toRows(rows []map[string]any) []graft.Row {
	out := make([]graft.Row, len(rows))
	for i, row := range rows {
		out[i] = graft.Row(row)
	}
	return out
}
