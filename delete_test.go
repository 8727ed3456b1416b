package graft

import (
	"context"
	"testing"
)

// seedAggregate saves a project with one owned detail, two owned tasks, one
// non-owned member and one linked tag, then loads it back.
func seedAggregate(t *testing.T, s *memStore, m *Model) *Node {
	t.Helper()
	saved, err := Save(context.Background(), m, "project", NewNode("project", Row{
		"name":   "garden",
		"detail": NewNode("detail", Row{"notes": "urgent"}),
		"tasks": []*Node{
			NewNode("task", Row{"desc": "dig"}),
			NewNode("task", Row{"desc": "plant"}),
		},
		"members": []*Node{NewNode("person", Row{"name": "Ann"})},
		"tags":    []*Node{NewNode("tag", Row{"label": "outdoor"})},
	}))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(context.Background(), m, "project", saved.Fields["id"])
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return loaded
}

func TestDeleteCascade(t *testing.T) {
	s := newMemStore()
	m := newTestModel(s)
	loaded := seedAggregate(t, s, m)

	count, err := Delete(context.Background(), m, "project", loaded)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	// 1 project + 2 owned tasks + 1 owned detail; detaches count zero.
	if count != 4 {
		t.Errorf("Expected 4 rows removed, got %d", count)
	}
	if s.count("project") != 0 || s.count("task") != 0 || s.count("detail") != 0 {
		t.Errorf("Expected owned rows gone: %d projects, %d tasks, %d details",
			s.count("project"), s.count("task"), s.count("detail"))
	}
	if s.linkCount("project_tag") != 0 {
		t.Errorf("Expected links removed, got %d", s.linkCount("project_tag"))
	}
	if s.count("tag") != 1 {
		t.Errorf("Expected non-owned tag row to survive, got %d", s.count("tag"))
	}
	person := s.row("person", 1)
	if person == nil {
		t.Fatal("Expected non-owned member row to survive")
	}
	if person["project_id"] != nil {
		t.Errorf("Expected member foreign key nulled, got %v", person["project_id"])
	}
}

func TestDeleteByIDNoCascade(t *testing.T) {
	s := newMemStore()
	m := newTestModel(s)
	loaded := seedAggregate(t, s, m)

	count, err := DeleteByID(context.Background(), m, "project", loaded.Fields["id"])
	if err != nil {
		t.Fatalf("DeleteByID failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 row removed, got %d", count)
	}
	if s.count("task") != 2 || s.count("detail") != 1 {
		t.Errorf("Expected children untouched: %d tasks, %d details",
			s.count("task"), s.count("detail"))
	}
}

func TestDeleteByIDNilID(t *testing.T) {
	s := newMemStore()
	m := newTestModel(s)

	count, err := DeleteByID(context.Background(), m, "project", nil)
	if err != nil || count != 0 {
		t.Errorf("Expected 0, nil for nil id, got %d, %v", count, err)
	}
}

func TestDeleteUnpersistedNode(t *testing.T) {
	s := newMemStore()
	m := newTestModel(s)

	count, err := Delete(context.Background(), m, "project", NewNode("project", Row{"name": "draft"}))
	if err != nil || count != 0 {
		t.Errorf("Expected 0, nil for unpersisted node, got %d, %v", count, err)
	}

	count, err = Delete(context.Background(), m, "project", nil)
	if err != nil || count != 0 {
		t.Errorf("Expected 0, nil for nil node, got %d, %v", count, err)
	}
}

func TestDeleteOwnedPrerequisiteByForeignKey(t *testing.T) {
	s := newMemStore()
	m := newTestModel(s)
	s.seed("detail", Row{"id": 5, "notes": "urgent"})
	s.seed("project", Row{"id": 1, "name": "garden", "detail_id": 5})

	// No embedded child: the stored foreign key alone drives the cascade.
	count, err := Delete(context.Background(), m, "project", NewNode("project", Row{
		"id":        1,
		"detail_id": 5,
	}))
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 rows removed, got %d", count)
	}
	if s.count("detail") != 0 {
		t.Errorf("Expected owned prerequisite removed, got %d rows", s.count("detail"))
	}
}

func TestDeleteNarrowedRelationSkipsTargets(t *testing.T) {
	s := newMemStore()
	m := newTestModel(s)
	loaded := seedAggregate(t, s, m)

	narrowed := m.Without(Pick("task"))
	count, err := Delete(context.Background(), narrowed, "project", loaded)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	// 1 project + 1 detail; the task cascade is narrowed away.
	if count != 2 {
		t.Errorf("Expected 2 rows removed, got %d", count)
	}
	if s.count("task") != 2 {
		t.Errorf("Expected tasks untouched, got %d rows", s.count("task"))
	}
}

func TestDeleteIdempotent(t *testing.T) {
	s := newMemStore()
	m := newTestModel(s)
	loaded := seedAggregate(t, s, m)

	if _, err := Delete(context.Background(), m, "project", loaded); err != nil {
		t.Fatalf("First delete failed: %v", err)
	}
	count, err := Delete(context.Background(), m, "project", loaded)
	if err != nil {
		t.Fatalf("Second delete failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 rows removed on repeat delete, got %d", count)
	}
}

func TestDeleteHooks(t *testing.T) {
	s := newMemStore()
	var events []string
	m := MustModel([]EntityConfig{
		NewEntity("project", s.accessors("project")).WithHooks(&Hooks{
			BeforeDelete: func(ctx context.Context, id any) error {
				events = append(events, "before-delete")
				return nil
			},
			AfterDelete: func(ctx context.Context, id any) error {
				events = append(events, "after-delete")
				return nil
			},
		}),
	})
	s.seed("project", Row{"id": 1, "name": "garden"})

	count, err := Delete(context.Background(), m, "project", NewNode("project", Row{"id": 1}))
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 row removed, got %d", count)
	}
	if len(events) != 2 || events[0] != "before-delete" || events[1] != "after-delete" {
		t.Errorf("Unexpected hook sequence: %v", events)
	}
}
