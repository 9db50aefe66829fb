package db

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ForUpdate applies a pessimistic row lock on dialects that support it.
// sqlite, which backs the test suite, has a single writer and no FOR UPDATE
// syntax, so the clause is skipped there.
func ForUpdate(q *gorm.DB) *gorm.DB {
	if q.Dialector.Name() == "sqlite" {
		return q
	}
	return q.Clauses(clause.Locking{Strength: "UPDATE"})
}

// ForUpdateSkipLocked locks matched rows and skips ones already claimed by a
// concurrent worker. Used by pollers that fan out over the same table.
func ForUpdateSkipLocked(q *gorm.DB) *gorm.DB {
	if q.Dialector.Name() == "sqlite" {
		return q
	}
	return q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
}
