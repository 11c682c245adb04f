package merge

import (
	"fmt"
	"strings"

	"crm_engine_backend/internal/contacts"
)

// Consolidate folds sources into target and returns the merged record. It is
// pure: the same inputs in any order produce the same output, because sources
// are considered in ascending id order.
//
// Scalars keep the target's non-empty value, else the first non-empty source
// value. Multi-valued fields are unioned case-insensitively. Notes are
// concatenated with an attribution prefix. The engagement score is the
// maximum and the last contact date the most recent.
func Consolidate(target contacts.Contact, sources []contacts.Contact) contacts.Contact {
	ordered := append([]contacts.Contact(nil), sources...)
	contacts.SortByID(ordered)

	merged := target
	for _, src := range ordered {
		if merged.EmailAddress() == "" && src.EmailAddress() != "" {
			email := src.EmailAddress()
			merged.Email = &email
		}
		fillString(&merged.FirstName, src.FirstName)
		fillString(&merged.LastName, src.LastName)
		fillString(&merged.Company, src.Company)
		fillString(&merged.Phone, src.Phone)
		fillString(&merged.JobTitle, src.JobTitle)
		fillString(&merged.Industry, src.Industry)
		fillString(&merged.Address.Street, src.Address.Street)
		fillString(&merged.Address.City, src.Address.City)
		fillString(&merged.Address.State, src.Address.State)
		fillString(&merged.Address.Zip, src.Address.Zip)
		fillString(&merged.Address.Country, src.Address.Country)
		fillString(&merged.Demeanor, src.Demeanor)
		fillString(&merged.PreferredChannel, src.PreferredChannel)
		fillString(&merged.Source, src.Source)

		if src.EngagementScore > merged.EngagementScore {
			merged.EngagementScore = src.EngagementScore
		}
		if src.LastContactDate != nil && (merged.LastContactDate == nil || src.LastContactDate.After(*merged.LastContactDate)) {
			at := *src.LastContactDate
			merged.LastContactDate = &at
		}
	}

	merged.Interests = unionFold(target.Interests, ordered, func(c contacts.Contact) []string { return c.Interests })
	merged.Hobbies = unionFold(target.Hobbies, ordered, func(c contacts.Contact) []string { return c.Hobbies })
	merged.OutreachChannels = unionFold(target.OutreachChannels, ordered, func(c contacts.Contact) []string { return c.OutreachChannels })
	merged.Notes = mergeNotes(target.Notes, ordered)

	return merged
}

func fillString(dst *string, candidate string) {
	if strings.TrimSpace(*dst) != "" {
		return
	}
	if v := strings.TrimSpace(candidate); v != "" {
		*dst = v
	}
}

func unionFold(base []string, sources []contacts.Contact, field func(contacts.Contact) []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(base))
	add := func(values []string) {
		for _, v := range values {
			trimmed := strings.TrimSpace(v)
			if trimmed == "" {
				continue
			}
			key := contacts.NameKey(trimmed)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, trimmed)
		}
	}
	add(base)
	for _, src := range sources {
		add(field(src))
	}
	return out
}

const mergedNotePrefix = "[Merged from "

func mergeNotes(targetNotes string, sources []contacts.Contact) string {
	base := strings.TrimSpace(targetNotes)
	parts := make([]string, 0, len(sources)+1)
	// Notes are compared whole. Entries already in the target cover re-running a merge.
	seenNotes := map[string]struct{}{}
	seenEntries := map[string]struct{}{}
	if base != "" {
		parts = append(parts, base)
		seenNotes[base] = struct{}{}
		for _, block := range strings.Split(base, "\n\n") {
			block = strings.TrimSpace(block)
			if strings.HasPrefix(block, mergedNotePrefix) {
				seenEntries[block] = struct{}{}
			} else {
				seenNotes[block] = struct{}{}
			}
		}
	}
	for _, src := range sources {
		note := strings.TrimSpace(src.Notes)
		if note == "" {
			continue
		}
		if _, ok := seenNotes[note]; ok {
			continue
		}
		entry := fmt.Sprintf("%s%s] %s", mergedNotePrefix, src.DisplayName(), note)
		if _, ok := seenEntries[entry]; ok {
			continue
		}
		seenNotes[note] = struct{}{}
		seenEntries[entry] = struct{}{}
		parts = append(parts, entry)
	}
	return strings.Join(parts, "\n\n")
}
