package web

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"recall/internal/calendar"
	appLog "recall/internal/log"
	"recall/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

func parsePages() *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/*.html"))
}

type hourLine struct {
	Label  string
	Offset float64
}

type eventBox struct {
	ID, Title, Category, Color, Range string
	Top, Height, Left, Width          float64
}

type dayPage struct {
	Day, Prev, Next string
	Scale           float64
	Height          float64
	// Shift is the pixel offset of the first visible hour.
	Shift float64
	Hours []hourLine
	Boxes []eventBox
}

func newDayPage(view calendar.DayView) dayPage {
	first, last := 0, 24
	height := dayHeight(view)
	if !view.Window.Full() {
		first, last = view.Window.StartHour, view.Window.EndHour
		height = float64(last-first) * view.Scale
	}
	shift := float64(first) * view.Scale

	p := dayPage{
		Day:    view.Day.String(),
		Prev:   view.Day.AddDays(-1).String(),
		Next:   view.Day.AddDays(1).String(),
		Scale:  view.Scale,
		Height: height,
		Shift:  shift,
		Hours:  make([]hourLine, 0, last-first),
		Boxes:  make([]eventBox, 0, len(view.Rects)),
	}
	for h := first; h < last; h++ {
		p.Hours = append(p.Hours, hourLine{
			Label:  fmt.Sprintf("%02d:00", h),
			Offset: float64(h-first) * view.Scale,
		})
	}
	for i, r := range view.Rects {
		ev := view.Events[i]
		p.Boxes = append(p.Boxes, eventBox{
			ID:       ev.ID,
			Title:    ev.Title,
			Category: ev.Category,
			Color:    ev.Color,
			Range:    ev.Start.Format("15:04") + "-" + ev.End.Format("15:04"),
			Top:      r.Offset - shift,
			Height:   r.Height,
			Left:     r.XFraction() * 100,
			Width:    r.WidthFraction() * 100,
		})
	}
	return p
}

// handleDayPage renders the day as positioned HTML. The body carries
// data-ready="true" once rendered so headless capture can wait on it.
func (s *Server) handleDayPage(w http.ResponseWriter, r *http.Request) {
	day, err := s.dayParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.renderDay(w, r, day)
}

func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	s.renderDay(w, r, model.DayOf(time.Now(), s.svc.Location()))
}

func (s *Server) renderDay(w http.ResponseWriter, r *http.Request, day model.Day) {
	scale, window, err := s.viewParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.svc.Focus(day)
	view, err := s.svc.Day(r.Context(), day, scale, window)
	if err != nil {
		appLog.Error("day page failed", err, "date", day.String())
		http.Error(w, "failed to lay out day", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.pages.ExecuteTemplate(w, "day.html", newDayPage(view)); err != nil {
		appLog.Error("day page render failed", err)
	}
}
