// Package graft persists and reconstitutes nested data trees ("aggregates")
// as sets of related records in a relational or relational-shaped store.
//
// A static relation model describes entities, their id columns, their record
// accessors, and the relations between them (to-one, to-many, or many-to-many
// through a link table). Three recursive engines traverse that model:
//
//   - Load hydrates an aggregate from a root id.
//   - Save persists an aggregate in three phases (prerequisites, self,
//     dependants) and reconciles orphaned dependants.
//   - Delete removes an aggregate's dependants, the root, and then its owned
//     prerequisites.
//
// The engines are storage-agnostic: they only call the accessor functions
// configured on the model. Adapter packages (graftbun, graftgorm, graftmongo,
// graftredis) generate accessor sets for concrete backends.
//
// Cycles in the relation graph are broken by configuration narrowing: before
// every recursive descent the engine drops the currently-processing entity
// from the model, so self-referential and mutually-referential relations
// terminate without runtime cycle tracking. The same narrowing operations
// (Only, Without) are exposed to callers for scoping partial updates.
//
// The engines run synchronously in the caller's goroutine and manage no
// transactions of their own; wrap top-level calls in a store transaction if
// atomicity is required.
package graft
