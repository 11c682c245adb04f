package contacts

import (
	"bytes"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

// EmailKey is the comparison key for email identity: trimmed and Unicode
// case-folded.
func EmailKey(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}

// NameKey is the comparison key for a first or last name.
func NameKey(name string) string {
	return cases.Fold().String(strings.Join(strings.Fields(name), " "))
}

// SortByID orders contacts by ascending id, which for time-ordered ids is
// creation order.
func SortByID(items []Contact) {
	sort.SliceStable(items, func(i, j int) bool {
		return bytes.Compare(items[i].ID[:], items[j].ID[:]) < 0
	})
}

// SortIDs orders ids ascending.
func SortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}
