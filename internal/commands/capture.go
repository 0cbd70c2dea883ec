package commands

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"recall/internal/capture"
	"recall/internal/model"
	"recall/internal/web"
)

func addCapture(topLevel *cobra.Command, opts *rootOptions) {
	var (
		date, out, baseURL, chrome string
		scale                      float64
		width, height              int
		timeout                    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Screenshot a day page from a running server.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			day := model.DayOf(time.Now(), cfg.Location())
			if date != "" && date != "today" {
				if day, err = model.ParseDay(date); err != nil {
					return err
				}
			}
			if out == "" {
				out = web.PreviewPath(cfg)
			}
			if baseURL == "" {
				baseURL = localURL(cfg.Listen)
			}
			o := capture.Options{
				BaseURL:    baseURL,
				Day:        day,
				Scale:      scale,
				OutputPath: out,
				Width:      width,
				Height:     height,
				Timeout:    timeout,
				ExecPath:   chrome,
			}
			if cfg.BasicAuth != nil {
				o.Username, o.Password = cfg.BasicAuth.Username, cfg.BasicAuth.Password
			}
			return capture.CaptureDayPNG(cmd.Context(), o)
		},
	}
	cmd.Flags().StringVar(&date, "date", "today", "Day to capture (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "PNG path (default <data_dir>/preview.png)")
	cmd.Flags().StringVar(&baseURL, "url", "", "Server base URL (default from listen)")
	cmd.Flags().StringVar(&chrome, "chrome", "", "Chromium binary")
	cmd.Flags().Float64Var(&scale, "scale", 0, "Pixels per hour")
	cmd.Flags().IntVar(&width, "width", capture.DefaultWidth, "Viewport width")
	cmd.Flags().IntVar(&height, "height", capture.DefaultHeight, "Viewport height")
	cmd.Flags().DurationVar(&timeout, "timeout", capture.DefaultTimeout, "Give up after")
	topLevel.AddCommand(cmd)
}

// localURL turns a listen address into something a local browser can open.
func localURL(listen string) string {
	switch {
	case strings.HasPrefix(listen, ":"):
		listen = "127.0.0.1" + listen
	case strings.HasPrefix(listen, "0.0.0.0:"):
		listen = "127.0.0.1" + strings.TrimPrefix(listen, "0.0.0.0")
	}
	return "http://" + listen
}
