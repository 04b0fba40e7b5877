// Package sqlguard rejects SQL statements that could mutate the store.
// It is advisory defense-in-depth in front of store-level read-only
// permissions, which must be configured independently.
package sqlguard

import (
	"fmt"
	"strings"
)

// denylist of mutating keywords, matched as case-insensitive substrings
// anywhere in the statement. This deliberately over-rejects: a SELECT
// touching a table named "updates" is refused too.
var denylist = []string{"update", "delete", "insert", "drop", "alter", "truncate"}

// UnsafeStatementError reports a statement rejected by the gate.
type UnsafeStatementError struct {
	Statement string
	Keyword   string
}

func (e *UnsafeStatementError) Error() string {
	return fmt.Sprintf("unsafe statement: contains %q", e.Keyword)
}

// Check returns an *UnsafeStatementError if sql contains any denylisted
// keyword, nil otherwise.
func Check(sql string) error {
	lower := strings.ToLower(sql)
	for _, kw := range denylist {
		if strings.Contains(lower, kw) {
			return &UnsafeStatementError{Statement: sql, Keyword: kw}
		}
	}
	return nil
}

// IsSafe reports whether sql passes the gate.
func IsSafe(sql string) bool {
	return Check(sql) == nil
}
