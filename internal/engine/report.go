package engine

import (
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
)

// Report logs a periodic status line and the notable events since the last
// report.
func (s *Simulation) Report(tick uint64, started time.Time) {
	st := s.Status()

	slog.Info("status report",
		"tick", humanize.Comma(int64(tick)),
		"uptime", humanize.RelTime(started, time.Now(), "", ""),
		"humans", st.Stats.Humans,
		"sheep", st.Stats.Sheep,
		"rice", st.Stats.Rice,
		"mature_rice", st.Stats.MatureRice,
		"eaten", humanize.Comma(int64(st.Stats.Eaten)),
		"routes", humanize.Comma(int64(st.Stats.Routes)),
		"route_fails", st.Stats.RouteFails,
		"flow_state", st.CostState,
		"flow_passes", humanize.Comma(int64(st.Generation)),
		"dirty_chunks", st.DirtyChunks,
	)

	for _, e := range s.RecentEvents(10) {
		slog.Info("event", "tick", e.Tick, "category", e.Category, "description", e.Description)
	}
}
