package graft

import "context"

// =====================================
// Lifecycle Hooks
// =====================================

// Hooks are optional per-entity callbacks invoked by the Save and Delete
// engines around the entity's own row operations. Nested relation traversal
// triggers the hooks of the nested entities, not of the root. A hook error
// aborts the cascade exactly like an accessor error.
type Hooks struct {
	BeforeInsert func(ctx context.Context, row Row) error
	AfterInsert  func(ctx context.Context, row Row) error
	BeforeUpdate func(ctx context.Context, row Row) error
	AfterUpdate  func(ctx context.Context, row Row) error
	BeforeDelete func(ctx context.Context, id any) error
	AfterDelete  func(ctx context.Context, id any) error
}

func (h *Hooks) beforeInsert(ctx context.Context, row Row) error {
	if h == nil || h.BeforeInsert == nil {
		return nil
	}
	return h.BeforeInsert(ctx, row)
}

func (h *Hooks) afterInsert(ctx context.Context, row Row) error {
	if h == nil || h.AfterInsert == nil {
		return nil
	}
	return h.AfterInsert(ctx, row)
}

func (h *Hooks) beforeUpdate(ctx context.Context, row Row) error {
	if h == nil || h.BeforeUpdate == nil {
		return nil
	}
	return h.BeforeUpdate(ctx, row)
}

func (h *Hooks) afterUpdate(ctx context.Context, row Row) error {
	if h == nil || h.AfterUpdate == nil {
		return nil
	}
	return h.AfterUpdate(ctx, row)
}

func (h *Hooks) beforeDelete(ctx context.Context, id any) error {
	if h == nil || h.BeforeDelete == nil {
		return nil
	}
	return h.BeforeDelete(ctx, id)
}

func (h *Hooks) afterDelete(ctx context.Context, id any) error {
	if h == nil || h.AfterDelete == nil {
		return nil
	}
	return h.AfterDelete(ctx, id)
}
