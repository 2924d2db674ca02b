// Package database provides the PostgreSQL connection pool and schema for
// the bar store written by barloader and plantd.
package database
