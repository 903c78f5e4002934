/*
reference.go - Reference numbers and row identifiers

A reference number correlates every history and audit row written by
one operation: PREFIX-<epoch millis>-<4 digit random>. It is a
human-readable correlation key, not a uniqueness guarantee; row
identity comes from uuid primary keys.
*/
package ledger

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// NewReference builds a correlation reference like DPY-1735689600000-0482.
func NewReference(prefix string) string {
	return fmt.Sprintf("%s-%d-%04d", prefix, time.Now().UnixMilli(), rand.Intn(10000))
}

// NewRowID returns a fresh uuid string for history and audit rows.
func NewRowID() string {
	return uuid.NewString()
}
