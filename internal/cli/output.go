package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
)

// writeOutput prints v as indented JSON or as the text text() renders.
func writeOutput(w io.Writer, format string, v any, text func() string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := io.WriteString(w, text())
	return err
}

func formatSummary(s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "stopped at tick %d\n", s.Tick)
	fmt.Fprintf(&b, "chickens %d  nests %d  eggs %d\n", s.State.Chickens, s.State.Nests, s.State.Eggs)
	fmt.Fprintf(&b, "breeding %d (%d%%)  incubating %d  clutches %d\n",
		s.State.Breeding, s.State.BreedingPercent(), s.State.Incubating, s.State.Clutches)
	if s.InFlight > 0 {
		fmt.Fprintf(&b, "%d clutch(es) still hatching; they settle on the next start\n", s.InFlight)
	}
	fmt.Fprintf(&b, "%d journal events\n", s.Events)
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
