package graft

import (
	"context"
	"fmt"
)

// memStore is an in-memory accessor fixture. It implements the accessor
// contract over plain maps and counts reads and relation queries per table
// so tests can assert which tables a traversal touched.
type memStore struct {
	tables  map[string]*memTable
	links   map[string][]memLink
	reads   map[string]int
	queries map[string]int
}

type memTable struct {
	rows   map[string]Row
	order  []string
	nextID int64
}

type memLink struct {
	own   any
	other any
}

func newMemStore() *memStore {
	return &memStore{
		tables:  make(map[string]*memTable),
		links:   make(map[string][]memLink),
		reads:   make(map[string]int),
		queries: make(map[string]int),
	}
}

func (s *memStore) table(name string) *memTable {
	t, ok := s.tables[name]
	if !ok {
		t = &memTable{rows: make(map[string]Row)}
		s.tables[name] = t
	}
	return t
}

// seed stores a row as-is, without touching the id sequence.
func (s *memStore) seed(table string, row Row) {
	t := s.table(table)
	key := idKey(row["id"])
	if _, exists := t.rows[key]; !exists {
		t.order = append(t.order, key)
	}
	t.rows[key] = row.Clone()
	if id, ok := row["id"].(int); ok && int64(id) > t.nextID {
		t.nextID = int64(id)
	}
	if id, ok := row["id"].(int64); ok && id > t.nextID {
		t.nextID = id
	}
}

// seedLink stores a link row.
func (s *memStore) seedLink(linkTable string, own, other any) {
	s.links[linkTable] = append(s.links[linkTable], memLink{own: own, other: other})
}

func (s *memStore) count(table string) int {
	return len(s.table(table).rows)
}

func (s *memStore) linkCount(linkTable string) int {
	return len(s.links[linkTable])
}

func (s *memStore) row(table string, id any) Row {
	row, ok := s.table(table).rows[idKey(id)]
	if !ok {
		return nil
	}
	return row.Clone()
}

func (s *memStore) accessors(table string) Accessors {
	return Accessors{
		Read: func(ctx context.Context, id any) (Row, error) {
			s.reads[table]++
			return s.row(table, id), nil
		},
		Insert: func(ctx context.Context, row Row) (Row, error) {
			t := s.table(table)
			out := row.Clone()
			if id, ok := out["id"]; !ok || id == nil {
				t.nextID++
				out["id"] = t.nextID
			}
			key := idKey(out["id"])
			if _, exists := t.rows[key]; !exists {
				t.order = append(t.order, key)
			}
			t.rows[key] = out.Clone()
			return out, nil
		},
		Update: func(ctx context.Context, row Row) (Row, error) {
			id, ok := row["id"]
			if !ok || id == nil {
				return nil, NewError(ErrorTypePrecondition, fmt.Sprintf("update on %q without id", table))
			}
			t := s.table(table)
			existing, ok := t.rows[idKey(id)]
			if !ok {
				return nil, NewError(ErrorTypeDatabase, fmt.Sprintf("no %q row with id %v", table, id))
			}
			for field, value := range row {
				existing[field] = value
			}
			return row, nil
		},
		Delete: func(ctx context.Context, id any) (int64, error) {
			t := s.table(table)
			key := idKey(id)
			if _, ok := t.rows[key]; !ok {
				return 0, nil
			}
			delete(t.rows, key)
			for i, k := range t.order {
				if k == key {
					t.order = append(t.order[:i], t.order[i+1:]...)
					break
				}
			}
			return 1, nil
		},
	}
}

// fkQuery returns the table's rows whose foreign-key column matches the
// owner id, in insertion order.
func (s *memStore) fkQuery(table, fkColumn string) QueryFunc {
	return func(ctx context.Context, id any) ([]Row, error) {
		s.queries[table]++
		t := s.table(table)
		var rows []Row
		for _, key := range t.order {
			row := t.rows[key]
			fk, ok := row[fkColumn]
			if !ok || fk == nil {
				continue
			}
			if idKey(fk) == idKey(id) {
				rows = append(rows, row.Clone())
			}
		}
		return rows, nil
	}
}

// linkQuery returns the target table's rows joined through the link table,
// in link insertion order.
func (s *memStore) linkQuery(table, linkTable string) QueryFunc {
	return func(ctx context.Context, id any) ([]Row, error) {
		s.queries[table]++
		var rows []Row
		for _, link := range s.links[linkTable] {
			if idKey(link.own) != idKey(id) {
				continue
			}
			if row := s.row(table, link.other); row != nil {
				rows = append(rows, row)
			}
		}
		return rows, nil
	}
}

// linkUpdate replaces all links for an owner id.
func (s *memStore) linkUpdate(linkTable string) LinkUpdateFunc {
	return func(ctx context.Context, selfID any, children []Row) error {
		kept := s.links[linkTable][:0]
		for _, link := range s.links[linkTable] {
			if idKey(link.own) != idKey(selfID) {
				kept = append(kept, link)
			}
		}
		s.links[linkTable] = kept
		for _, child := range children {
			s.links[linkTable] = append(s.links[linkTable], memLink{own: selfID, other: child["id"]})
		}
		return nil
	}
}

// newTestModel builds the fixture model:
//
//	project --to-one  (owned)  detail   via project.detail_id
//	project --to-many (owned)  task     via task.project_id
//	project --to-many          person   via person.project_id ("members")
//	project --linked           tag      via project_tag(project_id, tag_id)
//	task    --to-one           person   via task.assignee_id  ("assignee")
//	person  --to-one           person   via person.mentor_id  ("mentor")
func newTestModel(s *memStore, opts ...ModelOption) *Model {
	return MustModel([]EntityConfig{
		NewEntity("project", s.accessors("project"),
			NewToOne("detail", "detail", "detail_id").Owning(),
			NewToMany("tasks", "task", "project_id", s.fkQuery("task", "project_id")).Owning(),
			NewToMany("members", "person", "project_id", s.fkQuery("person", "project_id")),
			NewToManyLinked("tags", "tag", s.linkQuery("tag", "project_tag"), s.linkUpdate("project_tag")),
		),
		NewEntity("task", s.accessors("task"),
			NewToOne("assignee", "person", "assignee_id"),
		),
		NewEntity("detail", s.accessors("detail")),
		NewEntity("tag", s.accessors("tag")),
		NewEntity("person", s.accessors("person"),
			NewToOne("mentor", "person", "mentor_id"),
		),
	}, opts...)
}
