package graft

import (
	"context"
	"fmt"
)

// =====================================
// Delete Engine
// =====================================

// DeleteByID removes the single row with the given id and returns the number
// of rows removed. No cascade is attempted: with only an id there is no
// relation data to traverse. Callers needing deep deletion by id alone must
// Load first or rely on store-level cascading constraints.
func DeleteByID(ctx context.Context, m *Model, entity string, id any) (int64, error) {
	e, ok := m.entity(entity)
	if !ok {
		return 0, NewError(ErrorTypeConfiguration, fmt.Sprintf("unknown entity %q", entity))
	}
	if id == nil {
		return 0, nil
	}
	if err := e.hooks.beforeDelete(ctx, id); err != nil {
		return 0, err
	}
	removed, err := e.accessors.Delete(ctx, id)
	if err != nil {
		return removed, err
	}
	return removed, e.hooks.afterDelete(ctx, id)
}

// Delete removes the aggregate in three ordered phases and returns the total
// number of rows actually removed: dependants first (they must lose their
// reference to the row before it disappears), then the node's own row, then
// owned to-one prerequisites last (the deleted row held the only reference
// to them). Detaching updates and link removals contribute zero to the
// count.
//
// An accessor failure aborts the remaining cascade; the count of rows
// removed up to that point is returned alongside the error.
func Delete(ctx context.Context, m *Model, entity string, n *Node) (int64, error) {
	if n == nil {
		return 0, nil
	}
	e, ok := m.entity(entity)
	if !ok {
		return 0, NewError(ErrorTypeConfiguration, fmt.Sprintf("unknown entity %q", entity))
	}
	selfID, hasID := n.Fields[e.idColumn]
	if !hasID || selfID == nil {
		// Nothing in the store can reference an unpersisted node.
		return 0, nil
	}
	sub := m.without(e.name)
	var count int64

	// Phase 1: dependants.
	for _, name := range e.relationNames {
		rel := e.relations[name]
		if rel.Kind == ToOne {
			continue
		}
		target, ok := sub.entity(rel.Target)
		if !ok {
			continue
		}
		if rel.Kind == ToManyLinked {
			// All link rows go, owned or not; the target rows follow only
			// when owned.
			if err := rel.UpdateLinks(ctx, selfID, nil); err != nil {
				return count, err
			}
		}
		children := n.Children(rel.Name)
		switch {
		case rel.Owned:
			for _, child := range children {
				removed, err := Delete(ctx, sub, rel.Target, child)
				count += removed
				if err != nil {
					return count, err
				}
			}
		case rel.Kind == ToMany:
			for _, child := range children {
				childID := child.Fields[target.idColumn]
				if childID == nil {
					continue
				}
				detach := Row{target.idColumn: childID, rel.ForeignKey: nil}
				if _, err := target.accessors.Update(ctx, detach); err != nil {
					return count, err
				}
			}
		}
	}

	// Phase 2: self.
	if err := e.hooks.beforeDelete(ctx, selfID); err != nil {
		return count, err
	}
	removed, err := e.accessors.Delete(ctx, selfID)
	count += removed
	if err != nil {
		return count, err
	}
	if err := e.hooks.afterDelete(ctx, selfID); err != nil {
		return count, err
	}

	// Phase 3: owned prerequisites.
	for _, name := range e.relationNames {
		rel := e.relations[name]
		if rel.Kind != ToOne || !rel.Owned {
			continue
		}
		if _, ok := sub.entity(rel.Target); !ok {
			continue
		}
		if child := n.Child(rel.Name); child != nil {
			removed, err := Delete(ctx, sub, rel.Target, child)
			count += removed
			if err != nil {
				return count, err
			}
			continue
		}
		if fkID, present := n.Fields[rel.ForeignKey]; present && fkID != nil {
			removed, err := DeleteByID(ctx, sub, rel.Target, fkID)
			count += removed
			if err != nil {
				return count, err
			}
		}
	}
	return count, nil
}
