// Package planning defines the domain types shared by the search
// subsystem: entity kinds, requester identity, roles, and the entity
// projections returned to callers. The write-side CRUD layer owns the
// authoritative plan/communication tables; this package only describes
// their read-side shape.
package planning
