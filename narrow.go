package graft

import "sort"

// =====================================
// Configuration Narrowing
// =====================================

// Selection names an entity and, optionally, a subset of its relations.
type Selection struct {
	Entity    string
	Relations []string
}

// Pick builds a Selection for use with Only and Without.
func Pick(entity string, relations ...string) Selection {
	return Selection{Entity: entity, Relations: relations}
}

// Only derives a model retaining, for each named entity, exactly the named
// relations; all other relations of that entity are dropped, and entities
// not mentioned are dropped entirely. The receiver is not modified.
func (m *Model) Only(keep ...Selection) *Model {
	out := m.emptyCopy()
	for _, sel := range keep {
		e, ok := m.entities[sel.Entity]
		if !ok {
			continue
		}
		narrowed := &entityConfig{
			name:      e.name,
			idColumn:  e.idColumn,
			accessors: e.accessors,
			hooks:     e.hooks,
			relations: make(map[string]RelationConfig, len(sel.Relations)),
		}
		for _, name := range sel.Relations {
			if rel, ok := e.relations[name]; ok {
				narrowed.relations[name] = rel
				narrowed.relationNames = append(narrowed.relationNames, name)
			}
		}
		sort.Strings(narrowed.relationNames)
		out.entities[e.name] = narrowed
	}
	return out
}

// Without derives a model with the named entities removed wholesale, or,
// when a selection names relations, with only those relations removed from
// the entity. The receiver is not modified.
func (m *Model) Without(drop ...Selection) *Model {
	out := m.emptyCopy()
	dropRelations := make(map[string]map[string]bool)
	dropEntity := make(map[string]bool)
	for _, sel := range drop {
		if len(sel.Relations) == 0 {
			dropEntity[sel.Entity] = true
			continue
		}
		set := dropRelations[sel.Entity]
		if set == nil {
			set = make(map[string]bool)
			dropRelations[sel.Entity] = set
		}
		for _, name := range sel.Relations {
			set[name] = true
		}
	}
	for name, e := range m.entities {
		if dropEntity[name] {
			continue
		}
		dropped := dropRelations[name]
		if len(dropped) == 0 {
			out.entities[name] = e
			continue
		}
		narrowed := &entityConfig{
			name:      e.name,
			idColumn:  e.idColumn,
			accessors: e.accessors,
			hooks:     e.hooks,
			relations: make(map[string]RelationConfig, len(e.relations)),
		}
		for _, relName := range e.relationNames {
			if dropped[relName] {
				continue
			}
			narrowed.relations[relName] = e.relations[relName]
			narrowed.relationNames = append(narrowed.relationNames, relName)
		}
		out.entities[name] = narrowed
	}
	return out
}

// without is the internal fast path used before every recursive descent: it
// drops the currently-processing entity so that relation cycles terminate
// through progressively narrower models instead of runtime cycle tracking.
func (m *Model) without(entity string) *Model {
	if _, ok := m.entities[entity]; !ok {
		return m
	}
	out := m.emptyCopy()
	for name, e := range m.entities {
		if name == entity {
			continue
		}
		out.entities[name] = e
	}
	return out
}

// emptyCopy returns a model with the receiver's options and no entities.
// Entity configurations are immutable, so narrowed models may share them.
func (m *Model) emptyCopy() *Model {
	return &Model{
		entities:  make(map[string]*entityConfig, len(m.entities)),
		idColumn:  m.idColumn,
		persisted: m.persisted,
	}
}
