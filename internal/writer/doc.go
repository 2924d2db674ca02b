// Package writer batches bars into PostgreSQL.
//
// Writes are insert-only: a bar already stored for the same symbol,
// exchange, type, period and end time is skipped, so replaying a range
// twice is harmless. Prices are stored as NUMERIC.
package writer
