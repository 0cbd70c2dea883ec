package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"recall/internal/calendar"
	"recall/internal/layout"
)

func addLayout(topLevel *cobra.Command, opts *rootOptions) {
	var (
		date       string
		scale      float64
		start, end int
	)
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Print the column and pixel geometry of a day.",
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
			if scale <= 0 {
				scale = a.cfg.Scale
			}
			window := a.cfg.Window
			if cmd.Flags().Changed("start-hour") {
				window.StartHour = start
			}
			if cmd.Flags().Changed("end-hour") {
				window.EndHour = end
			}

			view, err := a.svc.Day(cmd.Context(), day, scale, window)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), layoutTable(view))
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "today", "Day to lay out (YYYY-MM-DD)")
	cmd.Flags().Float64Var(&scale, "scale", 0, fmt.Sprintf("Pixels per hour, %g..%g", layout.MinScale, layout.MaxScale))
	cmd.Flags().IntVar(&start, "start-hour", 0, "First visible hour")
	cmd.Flags().IntVar(&end, "end-hour", 24, "Hour the view ends at")
	topLevel.AddCommand(cmd)
}

func layoutTable(view calendar.DayView) *uitable.Table {
	bold := color.New(color.Bold)
	imported := color.New(color.FgCyan)

	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.MaxColWidth = 40
	tbl.AddRow(bold.Sprint(view.Day.String()), bold.Sprintf("%g px/h", view.Scale))
	tbl.AddRow("TIME", "TITLE", "CATEGORY", "COLUMN", "OFFSET", "HEIGHT")
	for i, r := range view.Rects {
		ev := view.Events[i]
		title := ev.Title
		if ev.Source != "" {
			title = imported.Sprint(title)
		}
		tbl.AddRow(
			ev.Start.Format("15:04")+"-"+ev.End.Format("15:04"),
			title,
			ev.Category,
			fmt.Sprintf("%d/%d", r.Column+1, r.Columns),
			fmt.Sprintf("%.1f", r.Offset),
			fmt.Sprintf("%.1f", r.Height),
		)
	}
	tbl.RightAlign(4)
	tbl.RightAlign(5)
	return tbl
}
