package graft

import (
	"fmt"
	"sort"
)

// =====================================
// Relation Model
// =====================================

// DefaultIDColumn is the id column assumed when a model or entity does not
// name one.
const DefaultIDColumn = "id"

// RelationConfig describes one named, typed edge from an entity to a target
// entity.
type RelationConfig struct {
	// Name is the relation key under which related nodes appear on an
	// aggregate node.
	Name string

	// Kind selects the traversal behavior: ToOne, ToMany or ToManyLinked.
	Kind RelationKind

	// Target is the entity identifier the relation points at. A target that
	// has been narrowed out of a model turns the relation into a no-op.
	Target string

	// ForeignKey is the foreign-key column: on the owning row for ToOne, on
	// the target rows for ToMany. Unused for ToManyLinked.
	ForeignKey string

	// Owned binds the target lifecycle to the owner: orphaned and deleted
	// targets cascade. Non-owned relations only detach.
	Owned bool

	// Query returns the currently linked target rows for an owner id.
	// Required for ToMany and ToManyLinked.
	Query QueryFunc

	// UpdateLinks replaces all link rows for an owner id. Required for
	// ToManyLinked only.
	UpdateLinks LinkUpdateFunc
}

// NewToOne creates a to-one relation carried by the foreignKey column on the
// owning entity's rows.
func NewToOne(name, target, foreignKey string) RelationConfig {
	return RelationConfig{Name: name, Kind: ToOne, Target: target, ForeignKey: foreignKey}
}

// NewToMany creates a to-many relation carried by the foreignKey column on
// the target entity's rows, read back through query.
func NewToMany(name, target, foreignKey string, query QueryFunc) RelationConfig {
	return RelationConfig{Name: name, Kind: ToMany, Target: target, ForeignKey: foreignKey, Query: query}
}

// NewToManyLinked creates a many-to-many relation whose linkage lives in a
// separate link table, read through query and rewritten through updateLinks.
func NewToManyLinked(name, target string, query QueryFunc, updateLinks LinkUpdateFunc) RelationConfig {
	return RelationConfig{Name: name, Kind: ToManyLinked, Target: target, Query: query, UpdateLinks: updateLinks}
}

// Owning returns a copy of the relation with ownership enabled.
func (r RelationConfig) Owning() RelationConfig {
	r.Owned = true
	return r
}

// EntityConfig describes one entity: its identifier, id column, accessor set,
// optional lifecycle hooks, and relations.
type EntityConfig struct {
	Name      string
	IDColumn  string // defaults to the model's id column
	Accessors Accessors
	Hooks     *Hooks
	Relations []RelationConfig
}

// NewEntity creates an entity configuration.
func NewEntity(name string, accessors Accessors, relations ...RelationConfig) EntityConfig {
	return EntityConfig{Name: name, Accessors: accessors, Relations: relations}
}

// WithIDColumn returns a copy of the entity configuration using the given id
// column instead of the model default.
func (e EntityConfig) WithIDColumn(column string) EntityConfig {
	e.IDColumn = column
	return e
}

// WithHooks returns a copy of the entity configuration with lifecycle hooks
// attached.
func (e EntityConfig) WithHooks(hooks *Hooks) EntityConfig {
	e.Hooks = hooks
	return e
}

// entityConfig is the resolved, immutable per-entity state held by a model.
type entityConfig struct {
	name          string
	idColumn      string
	accessors     Accessors
	hooks         *Hooks
	relations     map[string]RelationConfig
	relationNames []string // sorted, for deterministic traversal
}

// Model is an immutable entity-relation configuration. Narrowed copies are
// derived values; a model is never mutated after NewModel returns it.
type Model struct {
	entities  map[string]*entityConfig
	idColumn  string
	persisted PersistedFunc
}

// ModelOption configures global model behavior.
type ModelOption func(*Model)

// WithIDColumn sets the default id column for entities that do not name one.
func WithIDColumn(column string) ModelOption {
	return func(m *Model) { m.idColumn = column }
}

// WithPersistedPredicate replaces the predicate deciding whether a node
// already has a store record.
func WithPersistedPredicate(fn PersistedFunc) ModelOption {
	return func(m *Model) { m.persisted = fn }
}

// defaultPersisted reports whether the row carries a non-nil id field.
func defaultPersisted(idColumn string, row Row) bool {
	v, ok := row[idColumn]
	return ok && v != nil
}

// NewModel validates the entity configurations and builds an immutable
// relation model. Configuration problems (duplicate or unnamed entities,
// relations referencing undeclared entities, missing accessor or relation
// functions) are reported here and never surface during traversal.
func NewModel(entities []EntityConfig, opts ...ModelOption) (*Model, error) {
	m := &Model{
		entities:  make(map[string]*entityConfig, len(entities)),
		idColumn:  DefaultIDColumn,
		persisted: defaultPersisted,
	}
	for _, opt := range opts {
		opt(m)
	}

	for _, ec := range entities {
		if ec.Name == "" {
			return nil, NewError(ErrorTypeConfiguration, "entity with empty name")
		}
		if _, dup := m.entities[ec.Name]; dup {
			return nil, NewError(ErrorTypeConfiguration, fmt.Sprintf("duplicate entity %q", ec.Name))
		}
		if ec.Accessors.Read == nil || ec.Accessors.Insert == nil ||
			ec.Accessors.Update == nil || ec.Accessors.Delete == nil {
			return nil, NewError(ErrorTypeConfiguration, fmt.Sprintf("entity %q: incomplete accessor set", ec.Name))
		}
		idColumn := ec.IDColumn
		if idColumn == "" {
			idColumn = m.idColumn
		}
		resolved := &entityConfig{
			name:      ec.Name,
			idColumn:  idColumn,
			accessors: ec.Accessors,
			hooks:     ec.Hooks,
			relations: make(map[string]RelationConfig, len(ec.Relations)),
		}
		for _, rel := range ec.Relations {
			if rel.Name == "" {
				return nil, NewError(ErrorTypeConfiguration, fmt.Sprintf("entity %q: relation with empty name", ec.Name))
			}
			if _, dup := resolved.relations[rel.Name]; dup {
				return nil, NewError(ErrorTypeConfiguration, fmt.Sprintf("entity %q: duplicate relation %q", ec.Name, rel.Name))
			}
			if err := validateRelation(ec.Name, rel); err != nil {
				return nil, err
			}
			resolved.relations[rel.Name] = rel
			resolved.relationNames = append(resolved.relationNames, rel.Name)
		}
		sort.Strings(resolved.relationNames)
		m.entities[ec.Name] = resolved
	}

	// Targets must be declared somewhere in the full model; narrowing may
	// remove them later, which downgrades the relation to a no-op.
	for _, e := range m.entities {
		for _, name := range e.relationNames {
			rel := e.relations[name]
			if _, ok := m.entities[rel.Target]; !ok {
				return nil, NewError(ErrorTypeConfiguration,
					fmt.Sprintf("entity %q: relation %q references undeclared entity %q", e.name, name, rel.Target))
			}
		}
	}
	return m, nil
}

// validateRelation checks the per-kind required fields.
func validateRelation(entity string, rel RelationConfig) error {
	switch rel.Kind {
	case ToOne:
		if rel.ForeignKey == "" {
			return NewError(ErrorTypeConfiguration,
				fmt.Sprintf("entity %q: to-one relation %q requires a foreign key", entity, rel.Name))
		}
	case ToMany:
		if rel.ForeignKey == "" {
			return NewError(ErrorTypeConfiguration,
				fmt.Sprintf("entity %q: to-many relation %q requires a foreign key", entity, rel.Name))
		}
		if rel.Query == nil {
			return NewError(ErrorTypeConfiguration,
				fmt.Sprintf("entity %q: to-many relation %q requires a query function", entity, rel.Name))
		}
	case ToManyLinked:
		if rel.Query == nil {
			return NewError(ErrorTypeConfiguration,
				fmt.Sprintf("entity %q: to-many-linked relation %q requires a query function", entity, rel.Name))
		}
		if rel.UpdateLinks == nil {
			return NewError(ErrorTypeConfiguration,
				fmt.Sprintf("entity %q: to-many-linked relation %q requires a link-update function", entity, rel.Name))
		}
	default:
		return NewError(ErrorTypeConfiguration,
			fmt.Sprintf("entity %q: relation %q has unknown kind %q", entity, rel.Name, rel.Kind))
	}
	return nil
}

// MustModel is like NewModel but panics on configuration errors. Intended
// for static models built at program start.
func MustModel(entities []EntityConfig, opts ...ModelOption) *Model {
	m, err := NewModel(entities, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

// Entities returns the sorted entity identifiers present in the model.
func (m *Model) Entities() []string {
	names := make([]string, 0, len(m.entities))
	for name := range m.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasEntity reports whether the entity is present in the model.
func (m *Model) HasEntity(name string) bool {
	_, ok := m.entities[name]
	return ok
}

// IDColumn returns the id column for the given entity, or the model default
// when the entity is unknown.
func (m *Model) IDColumn(entity string) string {
	if e, ok := m.entities[entity]; ok {
		return e.idColumn
	}
	return m.idColumn
}

// Relations returns the entity's relations in traversal (name-sorted) order.
func (m *Model) Relations(entity string) []RelationConfig {
	e, ok := m.entities[entity]
	if !ok {
		return nil
	}
	out := make([]RelationConfig, 0, len(e.relationNames))
	for _, name := range e.relationNames {
		out = append(out, e.relations[name])
	}
	return out
}

// IDOf returns the node's id value under the model's id column for the
// node's entity, or nil when absent.
func (m *Model) IDOf(n *Node) any {
	if n == nil {
		return nil
	}
	return n.Fields[m.IDColumn(n.Entity)]
}

// isPersisted applies the configured persisted predicate.
func (m *Model) isPersisted(e *entityConfig, row Row) bool {
	return m.persisted(e.idColumn, row)
}

// entity returns the resolved entity configuration.
func (m *Model) entity(name string) (*entityConfig, bool) {
	e, ok := m.entities[name]
	return e, ok
}
