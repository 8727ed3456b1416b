package graft

import (
	"context"
	"fmt"
)

// =====================================
// Load Engine
// =====================================

// Load hydrates the aggregate rooted at the given id. It returns nil (with a
// nil error) when no row exists for the id. Load performs no writes; results
// depend only on current store state and the supplied model.
func Load(ctx context.Context, m *Model, entity string, id any) (*Node, error) {
	e, ok := m.entity(entity)
	if !ok {
		return nil, NewError(ErrorTypeConfiguration, fmt.Sprintf("unknown entity %q", entity))
	}
	row, err := e.accessors.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return loadRow(ctx, m, e, row)
}

// loadRow hydrates the relations of an already-read row. The model is
// narrowed by the current entity before every descent, so relations whose
// target has been narrowed away are skipped outright: to-one rows keep their
// foreign-key column untouched, to-many relation keys are omitted entirely.
func loadRow(ctx context.Context, m *Model, e *entityConfig, row Row) (*Node, error) {
	n := &Node{Entity: e.name, Fields: row}
	sub := m.without(e.name)

	for _, name := range e.relationNames {
		rel := e.relations[name]
		target, ok := sub.entity(rel.Target)
		if !ok {
			continue
		}

		switch rel.Kind {
		case ToOne:
			fk, present := n.Fields[rel.ForeignKey]
			if !present || fk == nil {
				continue
			}
			child, err := Load(ctx, sub, rel.Target, fk)
			if err != nil {
				return nil, err
			}
			if child == nil {
				// Dangling reference: hide both the relation and the key.
				delete(n.Fields, rel.Name)
				delete(n.Fields, rel.ForeignKey)
				continue
			}
			n.Fields[rel.Name] = child

		case ToMany, ToManyLinked:
			rows, err := rel.Query(ctx, n.Fields[e.idColumn])
			if err != nil {
				return nil, err
			}
			children := make([]*Node, 0, len(rows))
			for _, childRow := range rows {
				child, err := loadRow(ctx, sub, target, childRow)
				if err != nil {
					return nil, err
				}
				children = append(children, child)
			}
			n.Fields[rel.Name] = children
		}
	}
	return n, nil
}
