package ics

import (
	"strings"

	"github.com/google/uuid"

	"recall/internal/model"
)

// namespace seeds the name-based UUIDs of imported occurrences.
var namespace = uuid.MustParse("6f1f9c52-3a57-4d0e-9d1b-9a3c0f6b2e41")

// EventID is the stable event ID of an occurrence: re-importing the same
// feed upserts instead of duplicating.
func EventID(occ Occurrence) string {
	name := occ.SourceID + "\x00" + occ.UID + "\x00" + occ.InstanceKey
	return uuid.NewSHA1(namespace, []byte(name)).String()
}

// ToEvents maps occurrences onto recalled events. All-day occurrences are
// skipped: they have no place on an hourly grid. category is used when an
// occurrence carries no CATEGORIES of its own.
func ToEvents(occs []Occurrence, category string) []model.Event {
	out := make([]model.Event, 0, len(occs))
	for _, occ := range occs {
		if occ.AllDay {
			continue
		}
		ev := model.Event{
			ID:       EventID(occ),
			Title:    strings.TrimSpace(occ.Summary),
			Category: category,
			Color:    occ.Color,
			Notes:    notes(occ),
			Start:    occ.Start,
			End:      occ.End,
			Source:   occ.SourceID,
		}
		if len(occ.Categories) > 0 {
			ev.Category = occ.Categories[0]
		}
		if ev.Title == "" {
			ev.Title = "(untitled)"
		}
		out = append(out, ev)
	}
	return out
}

func notes(occ Occurrence) string {
	switch {
	case occ.Location == "":
		return occ.Description
	case occ.Description == "":
		return occ.Location
	default:
		return occ.Location + "\n\n" + occ.Description
	}
}
