// ABOUTME: Canonical key derivation for duplicate detection.
// ABOUTME: Collapses case, Unicode composition, and whitespace differences into one identity.

package normalize

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Key derives the canonical comparison key for a message body.
// Two bodies that differ only in letter case, Unicode composition form,
// or whitespace runs produce the same key. The empty string is a valid
// key: blank messages pool together as duplicates of each other.
//
// Steps, in order: Unicode case fold, NFC composition, whitespace-run
// collapse with leading/trailing trim.
func Key(text string) string {
	folded := cases.Fold().String(text)
	composed := norm.NFC.String(folded)
	return strings.Join(strings.Fields(composed), " ")
}
