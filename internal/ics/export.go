package ics

import (
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"recall/internal/model"
)

const productID = "-//recall//day layout//EN"

// Export writes events as a VCALENDAR. Soft-deleted events are left out.
func Export(w io.Writer, events []model.Event) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	stamp := time.Now().UTC()
	for _, ev := range events {
		if ev.Deleted() {
			continue
		}
		ve := cal.AddEvent(ev.ID)
		ve.SetDtStampTime(stamp)
		if !ev.CreatedAt.IsZero() {
			ve.SetCreatedTime(ev.CreatedAt.UTC())
		}
		if !ev.UpdatedAt.IsZero() {
			ve.SetModifiedAt(ev.UpdatedAt.UTC())
		}
		ve.SetStartAt(ev.Start.UTC())
		ve.SetEndAt(ev.End.UTC())
		ve.SetSummary(ev.Title)
		if ev.Notes != "" {
			ve.SetDescription(ev.Notes)
		}
		if ev.Category != "" {
			ve.SetProperty(ical.ComponentPropertyCategories, ev.Category)
		}
		if ev.Color != "" {
			ve.SetProperty(ical.ComponentProperty(propertyColor), ev.Color)
		}
	}

	_, err := io.WriteString(w, cal.Serialize())
	return err
}
