package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"recall/internal/ics"
	"recall/internal/model"
	"recall/internal/refresh"
	"recall/internal/store"
)

func addAdd(topLevel *cobra.Command, opts *rootOptions) {
	var (
		date, start, end        string
		title, category, colour string
		notes                   string
		duration                time.Duration
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Recall an event by hand.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			day, err := a.dayFlag(date)
			if err != nil {
				return err
			}
			loc := a.cfg.Location()
			from, err := clockOn(day, start, loc)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			var to time.Time
			switch {
			case end != "":
				if to, err = clockOn(day, end, loc); err != nil {
					return fmt.Errorf("--end: %w", err)
				}
				// An end before the start rolls into the next day.
				if to.Before(from) {
					to = clockOnDay(day.AddDays(1), to, loc)
				}
			case duration > 0:
				to = from.Add(duration)
			default:
				return errors.New("one of --end or --duration is required")
			}

			ev, err := a.svc.Create(cmd.Context(), model.Event{
				Title:    title,
				Category: category,
				Color:    colour,
				Notes:    notes,
				Start:    from,
				End:      to,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s %s %s-%s\n",
				ev.ID, ev.Title, ev.Start.Format("15:04"), ev.End.Format("15:04"))
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "today", "Day of the event (YYYY-MM-DD)")
	cmd.Flags().StringVar(&start, "start", "", "Start time (HH:MM)")
	cmd.Flags().StringVar(&end, "end", "", "End time (HH:MM)")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Length, used when --end is not given")
	cmd.Flags().StringVar(&title, "title", "", "Event title")
	cmd.Flags().StringVar(&category, "category", "", "Category label")
	cmd.Flags().StringVar(&colour, "color", "", "Display color, e.g. #4a90d9")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form notes")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("title")
	topLevel.AddCommand(cmd)
}

// clockOn places an HH:MM wall clock on day in loc.
func clockOn(day model.Day, hhmm string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(hhmm))
	if err != nil {
		return time.Time{}, err
	}
	return clockOnDay(day, t, loc), nil
}

func clockOnDay(day model.Day, t time.Time, loc *time.Location) time.Time {
	return time.Date(day.Year, day.Month, day.Day, t.Hour(), t.Minute(), 0, 0, loc)
}

func addImport(topLevel *cobra.Command, opts *rootOptions) {
	var source, category string
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Mirror a local .ics file into the event store.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			body, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			if source == "" {
				source = "file:" + filepath.Base(args[0])
			}
			report, err := a.scheduler().Import(cmd.Context(), ics.Source{ID: source, Category: category}, body)
			printReport(cmd.OutOrStdout(), report)
			return err
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "Source ID for the imported events (default file:<name>)")
	cmd.Flags().StringVar(&category, "category", "", "Category for events without CATEGORIES")
	topLevel.AddCommand(cmd)
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func addExport(topLevel *cobra.Command, opts *rootOptions) {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all live events as an iCalendar file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			events, err := a.repo.List(cmd.Context())
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				return ics.Export(cmd.OutOrStdout(), events)
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := ics.Export(f, events); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	topLevel.AddCommand(cmd)
}

func addRefresh(topLevel *cobra.Command, opts *rootOptions) {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch every subscribed feed once.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			report, err := a.scheduler().RunOnce(cmd.Context())
			printReport(cmd.OutOrStdout(), report)
			return err
		},
	}
	topLevel.AddCommand(cmd)
}

func printReport(w io.Writer, r refresh.Report) {
	status := color.GreenString("ok")
	if len(r.Errors) > 0 {
		status = color.RedString("%d errors", len(r.Errors))
	}
	fmt.Fprintf(w, "sources=%d upserted=%d removed=%d skipped=%d kept=%d %s\n",
		r.Sources, r.Upserted, r.Removed, r.Skipped, r.Kept, status)
}

func addPurge(topLevel *cobra.Command, opts *rootOptions) {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Erase soft-deleted events from disk.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load(cmd.Context())
			if err != nil {
				return err
			}
			disk, ok := a.repo.(*store.DiskStore)
			if !ok {
				return errors.New("purge needs the disk store")
			}
			n, err := disk.Purge(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d events\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Only erase events deleted this long ago")
	topLevel.AddCommand(cmd)
}

func addVersion(topLevel *cobra.Command) {
	topLevel.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "recall", Version)
		},
	})
}
