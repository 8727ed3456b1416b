package graft

// =====================================
// Provider Interfaces
// =====================================

// ProviderInfo contains information about a provider.
type ProviderInfo struct {
	Name         string
	Version      string
	DatabaseType DatabaseType
	Features     []Feature
}

// Provider generates accessor sets satisfying the engine's contract for one
// backend. A provider is a convenience layer: the engines accept any
// conforming accessor set and never depend on a provider directly.
type Provider interface {
	// Accessors returns the read/insert/update/delete set for one table
	// (or collection, key prefix, ...) with the given id column.
	Accessors(table, idColumn string) Accessors

	// ForeignKeyQuery returns a QueryFunc selecting the table's rows whose
	// foreign-key column equals the owner id.
	ForeignKeyQuery(table, fkColumn string) QueryFunc

	// LinkQuery returns a QueryFunc selecting the table's rows joined
	// through the link table. Implementations must strip the link table's
	// own key columns from each result row.
	LinkQuery(table, idColumn, linkTable, ownColumn, otherColumn string) QueryFunc

	// LinkUpdater returns a LinkUpdateFunc performing full link replacement
	// on the link table: delete all links for the owner id, then insert one
	// link per child, taking child ids from targetIDColumn.
	LinkUpdater(linkTable, ownColumn, otherColumn, targetIDColumn string) LinkUpdateFunc

	// Health checks whether the backend is reachable.
	Health() error

	// Close releases the provider's resources.
	Close() error

	// Info returns metadata about the provider.
	Info() ProviderInfo
}

// ProviderFactory creates providers from configuration.
type ProviderFactory interface {
	// Create opens a backend connection per the configuration and returns
	// a provider bound to it.
	Create(config Config) (Provider, error)

	// SupportedDrivers returns the driver names the factory accepts.
	SupportedDrivers() []string
}
