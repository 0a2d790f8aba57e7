package console

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/yuin/goldmark"

	"github.com/sstgo/corevortex/internal/simulation"
	"github.com/sstgo/corevortex/internal/telemetry"
)

// RenderReport builds a markdown summary of the run so far (current
// position, vortex depth, and an event-kind breakdown from telemetry)
// and converts it to HTML. telemetry may be nil, in which case the
// event breakdown section is omitted.
func RenderReport(sim *simulation.Simulation, store *telemetry.Store) ([]byte, error) {
	var md bytes.Buffer

	fmt.Fprintf(&md, "# corevortex run report\n\n")
	fmt.Fprintf(&md, "- rank: %d\n", sim.Rank)
	fmt.Fprintf(&md, "- thread: %d\n", sim.Thread)
	fmt.Fprintf(&md, "- current sim cycle: %d\n", sim.CurrentCycle())

	v := sim.Vortex()
	fmt.Fprintf(&md, "- vortex depth: %d (max %d)\n", v.CurrentDepth(), v.MaxDepth())
	fmt.Fprintf(&md, "- links allocated: %d\n\n", sim.Links().Len())

	if store != nil {
		counts, err := store.CountByKind()
		if err != nil {
			return nil, fmt.Errorf("render report: event counts: %w", err)
		}
		md.WriteString("## Events\n\n")
		if len(counts) == 0 {
			md.WriteString("No events logged yet.\n\n")
		} else {
			kinds := make([]string, 0, len(counts))
			for k := range counts {
				kinds = append(kinds, k)
			}
			sort.Strings(kinds)
			md.WriteString("| kind | count |\n|---|---|\n")
			for _, k := range kinds {
				fmt.Fprintf(&md, "| %s | %d |\n", k, counts[k])
			}
			md.WriteString("\n")
		}

		recent, err := store.Recent(20)
		if err != nil {
			return nil, fmt.Errorf("render report: recent events: %w", err)
		}
		if len(recent) > 0 {
			md.WriteString("## Recent activity\n\n")
			for _, r := range recent {
				fmt.Fprintf(&md, "- `%s` **%s**/%s\n", r.Ts.Format("15:04:05.000"), r.Source, r.Kind)
			}
		}
	}

	var html bytes.Buffer
	if err := goldmark.Convert(md.Bytes(), &html); err != nil {
		return nil, fmt.Errorf("render report: markdown conversion: %w", err)
	}
	return html.Bytes(), nil
}
