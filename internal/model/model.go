package model

import "time"

// Event is a single recalled block of time. Values are snapshots: the
// persistence layer hands out copies and accepts Changes for writes.
type Event struct {
	ID string `json:"id"`

	Title    string `json:"title"`
	Category string `json:"category,omitempty"`
	Color    string `json:"color,omitempty"`
	Notes    string `json:"notes,omitempty"`

	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	// Source is the subscription ID for imported events, empty for events
	// recalled by hand.
	Source string `json:"source,omitempty"`
	// Edited is set by the first local change. Feed refreshes leave edited
	// events as they are.
	Edited bool `json:"edited,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Key, Begin and Finish let events feed the layout engine directly.
func (e Event) Key() string       { return e.ID }
func (e Event) Begin() time.Time  { return e.Start }
func (e Event) Finish() time.Time { return e.End }

func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Deleted reports whether the event was soft-deleted.
func (e Event) Deleted() bool {
	return e.DeletedAt != nil
}

// Changes describes a partial update. Nil fields mean "unchanged".
type Changes struct {
	Start    *time.Time `json:"start,omitempty"`
	End      *time.Time `json:"end,omitempty"`
	Title    *string    `json:"title,omitempty"`
	Category *string    `json:"category,omitempty"`
	Color    *string    `json:"color,omitempty"`
	Notes    *string    `json:"notes,omitempty"`
}

// Empty reports whether c changes nothing.
func (c Changes) Empty() bool {
	return c.Start == nil && c.End == nil && c.Title == nil &&
		c.Category == nil && c.Color == nil && c.Notes == nil
}

// Apply returns a copy of ev with c applied. It does not validate the result.
func (c Changes) Apply(ev Event) Event {
	if c.Start != nil {
		ev.Start = *c.Start
	}
	if c.End != nil {
		ev.End = *c.End
	}
	if c.Title != nil {
		ev.Title = *c.Title
	}
	if c.Category != nil {
		ev.Category = *c.Category
	}
	if c.Color != nil {
		ev.Color = *c.Color
	}
	if c.Notes != nil {
		ev.Notes = *c.Notes
	}
	return ev
}
