package graft

import (
	"context"
	"fmt"
)

// =====================================
// Save Engine
// =====================================

// Save persists the aggregate in three phases: to-one prerequisites first
// (their ids are needed as foreign keys on this row), then the node's own
// row, then to-many dependants (which need the just-assigned id). Currently
// linked dependants missing from the saved tree are orphans: owned orphans
// are deleted, non-owned to-many orphans have their foreign key nulled, and
// to-many-linked orphans simply lose their link row.
//
// The input node is not modified; the returned node carries the generated
// ids. A missing dependant list is treated as an empty one; callers doing
// partial updates must narrow the model with Without or Only.
func Save(ctx context.Context, m *Model, entity string, n *Node) (*Node, error) {
	if n == nil {
		return nil, NewError(ErrorTypePrecondition, "save of nil node")
	}
	e, ok := m.entity(entity)
	if !ok {
		return nil, NewError(ErrorTypeConfiguration, fmt.Sprintf("unknown entity %q", entity))
	}

	out := n.Clone()
	out.Entity = e.name
	sub := m.without(e.name)

	if err := savePrerequisites(ctx, m, sub, e, out); err != nil {
		return nil, err
	}
	if err := saveSelf(ctx, m, e, out); err != nil {
		return nil, err
	}
	if err := saveDependants(ctx, m, sub, e, out); err != nil {
		return nil, err
	}
	return out, nil
}

// savePrerequisites handles the to-one relations (phase A).
func savePrerequisites(ctx context.Context, m, sub *Model, e *entityConfig, out *Node) error {
	for _, name := range e.relationNames {
		rel := e.relations[name]
		if rel.Kind != ToOne {
			continue
		}
		target, ok := sub.entity(rel.Target)
		if !ok {
			continue
		}

		if child := out.Child(rel.Name); child != nil {
			saved, err := Save(ctx, sub, rel.Target, child)
			if err != nil {
				return err
			}
			out.Fields[rel.ForeignKey] = saved.Fields[target.idColumn]
			out.Fields[rel.Name] = saved
			continue
		}

		// No embedded child. On a persisted node a lingering foreign-key
		// value means the prerequisite was removed from the aggregate:
		// clear the reference, drop owned targets, and strip the key. New
		// nodes keep a caller-set foreign key as a plain column to insert.
		if !m.isPersisted(e, out.Fields) {
			continue
		}
		fkID, present := out.Fields[rel.ForeignKey]
		if !present || fkID == nil {
			continue
		}
		clearFK := Row{e.idColumn: out.Fields[e.idColumn], rel.ForeignKey: nil}
		if _, err := e.accessors.Update(ctx, clearFK); err != nil {
			return err
		}
		if rel.Owned {
			if _, err := DeleteByID(ctx, sub, rel.Target, fkID); err != nil {
				return err
			}
		}
		delete(out.Fields, rel.ForeignKey)
	}
	return nil
}

// saveSelf inserts or updates the node's own row (phase B) and merges the
// resulting id back into the node.
func saveSelf(ctx context.Context, m *Model, e *entityConfig, out *Node) error {
	row := make(Row, len(out.Fields))
	for k, v := range out.Fields {
		if _, isRelation := e.relations[k]; isRelation {
			continue
		}
		// Relation values of entities narrowed out of the model are not
		// columns either.
		switch v.(type) {
		case *Node, []*Node:
			continue
		}
		row[k] = v
	}

	var (
		saved Row
		err   error
	)
	if m.isPersisted(e, out.Fields) {
		if err := e.hooks.beforeUpdate(ctx, row); err != nil {
			return err
		}
		if saved, err = e.accessors.Update(ctx, row); err != nil {
			return err
		}
		if err := e.hooks.afterUpdate(ctx, saved); err != nil {
			return err
		}
	} else {
		if err := e.hooks.beforeInsert(ctx, row); err != nil {
			return err
		}
		if saved, err = e.accessors.Insert(ctx, row); err != nil {
			return err
		}
		if err := e.hooks.afterInsert(ctx, saved); err != nil {
			return err
		}
	}
	if saved != nil {
		if id, ok := saved[e.idColumn]; ok {
			out.Fields[e.idColumn] = id
		}
	}
	return nil
}

// saveDependants handles the to-many and to-many-linked relations (phase C).
func saveDependants(ctx context.Context, m, sub *Model, e *entityConfig, out *Node) error {
	selfID := out.Fields[e.idColumn]

	for _, name := range e.relationNames {
		rel := e.relations[name]
		if rel.Kind == ToOne {
			continue
		}
		target, ok := sub.entity(rel.Target)
		if !ok {
			continue
		}
		if !m.isPersisted(e, out.Fields) {
			return NewError(ErrorTypePrecondition,
				fmt.Sprintf("entity %q: dependant save requires a persisted node", e.name))
		}

		// The rows currently linked in the store are the orphan-detection
		// baseline, re-read immediately before reconciling.
		current, err := rel.Query(ctx, selfID)
		if err != nil {
			return err
		}

		children := out.Children(rel.Name)
		saved := make([]*Node, 0, len(children))
		keep := make(map[string]bool, len(children))
		for _, child := range children {
			if rel.Kind == ToMany {
				child.Fields[rel.ForeignKey] = selfID
			}
			savedChild, err := Save(ctx, sub, rel.Target, child)
			if err != nil {
				return err
			}
			if rel.Kind == ToMany {
				delete(savedChild.Fields, rel.ForeignKey)
			}
			saved = append(saved, savedChild)
			keep[idKey(savedChild.Fields[target.idColumn])] = true
		}

		for _, row := range current {
			childID := row[target.idColumn]
			if keep[idKey(childID)] {
				continue
			}
			switch {
			case rel.Owned:
				if _, err := Delete(ctx, sub, rel.Target, &Node{Entity: rel.Target, Fields: row}); err != nil {
					return err
				}
			case rel.Kind == ToMany:
				detach := Row{target.idColumn: childID, rel.ForeignKey: nil}
				if _, err := target.accessors.Update(ctx, detach); err != nil {
					return err
				}
				// To-many-linked orphans need no row update: their link is
				// simply not reinserted below.
			}
		}

		if rel.Kind == ToManyLinked {
			rows := make([]Row, len(saved))
			for i, child := range saved {
				rows[i] = child.Fields
			}
			if err := rel.UpdateLinks(ctx, selfID, rows); err != nil {
				return err
			}
		}
		out.Fields[rel.Name] = saved
	}
	return nil
}

// idKey normalizes an id for set membership so that, for example, an int
// supplied by the caller matches the int64 the store returns.
func idKey(id any) string {
	return fmt.Sprint(id)
}
