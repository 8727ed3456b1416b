package graft

import (
	"context"
	"time"
)

// =====================================
// Core Types and Constants
// =====================================

// Row is a single stored record: an open mapping of column name to value.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Node is an aggregate node: a row tagged with its owning entity. Keys named
// after relations may hold a nested *Node (to-one) or []*Node (to-many,
// to-many-linked); all other keys are plain columns.
type Node struct {
	Entity string
	Fields Row
}

// NewNode creates a node for the given entity from a row.
func NewNode(entity string, fields Row) *Node {
	if fields == nil {
		fields = Row{}
	}
	return &Node{Entity: entity, Fields: fields}
}

// Child returns the nested node stored under a to-one relation name,
// or nil if the key is absent or holds something else.
func (n *Node) Child(name string) *Node {
	if n == nil {
		return nil
	}
	child, _ := n.Fields[name].(*Node)
	return child
}

// Children returns the nested node list stored under a to-many relation name.
// The result is nil if the key is absent or holds something else.
func (n *Node) Children(name string) []*Node {
	if n == nil {
		return nil
	}
	children, _ := n.Fields[name].([]*Node)
	return children
}

// Clone returns a deep copy of the node. Nested nodes and node lists are
// cloned; leaf column values are copied as-is.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{Entity: n.Entity, Fields: make(Row, len(n.Fields))}
	for k, v := range n.Fields {
		switch val := v.(type) {
		case *Node:
			out.Fields[k] = val.Clone()
		case []*Node:
			children := make([]*Node, len(val))
			for i, c := range val {
				children[i] = c.Clone()
			}
			out.Fields[k] = children
		default:
			out.Fields[k] = v
		}
	}
	return out
}

// RelationKind is the closed set of relation types.
type RelationKind string

const (
	// ToOne references a single target row through a foreign-key column on
	// the owning row.
	ToOne RelationKind = "to-one"

	// ToMany references target rows through a foreign-key column on the
	// target rows.
	ToMany RelationKind = "to-many"

	// ToManyLinked references target rows through a separate link table.
	// The owning row never carries a foreign-key column for the relation.
	ToManyLinked RelationKind = "to-many-linked"
)

// =====================================
// Accessor Contract
// =====================================

// ReadFunc reads a single row by id. A nil row (with nil error) means the
// row does not exist; that is a normal outcome, not an error.
type ReadFunc func(ctx context.Context, id any) (Row, error)

// InsertFunc inserts a row and returns it augmented with the generated id.
type InsertFunc func(ctx context.Context, row Row) (Row, error)

// UpdateFunc applies the given columns to the row identified by the row's id
// field. Columns absent from the row are left untouched; a nil value sets
// the column to null. Calling update without an id field is a precondition
// violation.
type UpdateFunc func(ctx context.Context, row Row) (Row, error)

// DeleteFunc deletes a row by id and returns the number of rows removed.
type DeleteFunc func(ctx context.Context, id any) (int64, error)

// Accessors is the per-entity accessor set consumed by the engines.
type Accessors struct {
	Read   ReadFunc
	Insert InsertFunc
	Update UpdateFunc
	Delete DeleteFunc
}

// QueryFunc returns the rows currently linked to the given owner id, either
// by foreign key (to-many) or through a link table (to-many-linked). Link
// implementations must strip the link table's own key columns from each row.
type QueryFunc func(ctx context.Context, id any) ([]Row, error)

// LinkUpdateFunc replaces all link rows for the given owner id: it removes
// every existing link for selfID and inserts exactly one link per child row.
// It is a full-replacement operation, not an incremental diff.
type LinkUpdateFunc func(ctx context.Context, selfID any, children []Row) error

// PersistedFunc decides whether a row already has a corresponding store
// record. The default implementation checks id-field presence.
type PersistedFunc func(idColumn string, row Row) bool

// =====================================
// Adapter Configuration
// =====================================

// Config carries backend connection configuration consumed by adapter
// factories.
type Config struct {
	// Connection details
	Driver        string `json:"driver" yaml:"driver"`
	ConnectionURL string `json:"connection_url" yaml:"connection_url"`
	Host          string `json:"host" yaml:"host"`
	Port          int    `json:"port" yaml:"port"`
	Database      string `json:"database" yaml:"database"`
	Username      string `json:"username" yaml:"username"`
	Password      string `json:"password" yaml:"password"`

	// Connection pool settings
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time"`

	// Backend-specific options, keyed by adapter name
	Options map[string]interface{} `json:"options" yaml:"options"`

	// SSL/TLS configuration
	SSL SSLConfig `json:"ssl" yaml:"ssl"`
}

// SSLConfig represents SSL/TLS configuration.
type SSLConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Mode     string `json:"mode" yaml:"mode"`
	CertFile string `json:"cert_file" yaml:"cert_file"`
	KeyFile  string `json:"key_file" yaml:"key_file"`
	CAFile   string `json:"ca_file" yaml:"ca_file"`
}

// DatabaseType represents the type of backing store.
type DatabaseType string

const (
	DatabaseTypeSQL      DatabaseType = "sql"
	DatabaseTypeDocument DatabaseType = "document"
	DatabaseTypeKV       DatabaseType = "key-value"
	DatabaseTypeMemory   DatabaseType = "memory"
)

// Feature represents a backend capability.
type Feature string

const (
	FeatureTransactions     Feature = "transactions"
	FeatureJoins            Feature = "joins"
	FeatureGeneratedKeys    Feature = "generated_keys"
	FeatureSecondaryIndexes Feature = "secondary_indexes"
	FeaturePartialUpdates   Feature = "partial_updates"
)
