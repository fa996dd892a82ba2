// Package search implements tenant-scoped, permission-filtered full-text
// search over planning entities.
//
// Entities and their relations are projected into a denormalized index
// table per entity type, rebuilt on a schedule into a shadow table and
// swapped in atomically. Queries combine a ranked tsvector match, facet
// array filters, and a live visibility predicate joined back to the
// authoritative entity rows, so a stale index can hide an item but never
// over-expose one.
package search
