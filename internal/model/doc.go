// Package model defines the records delivered by the plants.
//
// Conventions:
//   - Prices and money: shopspring decimal.Decimal, never float64
//   - Timestamps: time.Time in UTC, built from venue seconds (ssboe) plus
//     optional microseconds (usecs)
//   - Quantities: int64 contracts
package model
