package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// showUsageChart renders bar charts of actuation volume by hour of day
// and by commanded degree. Query params:
//   - days (optional; defaults to the configured audit window)
func (s *Server) showUsageChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	days, err := s.parseDaysParam(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'days' parameter")
		return
	}

	hours, err := s.db.ActuationCountsByHour(days)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to get hourly counts: %v", err))
		return
	}
	degrees, err := s.db.ActuationCountsByDegree(days)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to get degree counts: %v", err))
		return
	}

	subtitle := fmt.Sprintf("last %d days, rendered %s", days,
		s.clock.Now().UTC().Format(time.RFC3339))

	hourX := make([]string, 0, len(hours))
	hourY := make([]opts.BarData, 0, len(hours))
	for _, h := range hours {
		hourX = append(hourX, fmt.Sprintf("%02d:00", h.Hour))
		hourY = append(hourY, opts.BarData{Value: h.Count})
	}

	hourBar := charts.NewBar()
	hourBar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Lock Usage", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Actuations by Hour (UTC)", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	hourBar.SetXAxis(hourX).
		AddSeries("actuations", hourY,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	degreeX := make([]string, 0, len(degrees))
	degreeY := make([]opts.BarData, 0, len(degrees))
	for _, d := range degrees {
		degreeX = append(degreeX, fmt.Sprintf("%d deg", d.Degree))
		degreeY = append(degreeY, opts.BarData{Value: d.Count})
	}

	degreeBar := charts.NewBar()
	degreeBar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Actuations by Degree", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	degreeBar.SetXAxis(degreeX).
		AddSeries("actuations", degreeY,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.AddCharts(hourBar, degreeBar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
