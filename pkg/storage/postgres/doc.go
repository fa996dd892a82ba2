// Package postgres manages PostgreSQL connections for the search
// subsystem: a primary for index rebuilds and round-robin read
// replicas for query traffic.
package postgres
