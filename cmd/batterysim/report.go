package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/MendeTr/BatterySim/pkg/types"
)

// printReport writes the human-readable run summary.
func printReport(w io.Writer, s types.RunSummary) {
	fmt.Fprintln(w, "=== Simulation Summary ===")
	fmt.Fprintf(w, "Hours simulated:       %d (skipped %d)\n", s.Hours, s.Skipped)
	fmt.Fprintf(w, "Peak shaving value:    %.2f SEK\n", s.PeakShavingSEK)
	fmt.Fprintf(w, "Self-consumption:      %.2f SEK\n", s.SelfConsumptionSEK)
	fmt.Fprintf(w, "Export revenue:        %.2f SEK\n", s.ExportRevenueSEK)
	fmt.Fprintf(w, "Total value:           %.2f SEK\n",
		s.PeakShavingSEK+s.SelfConsumptionSEK+s.ExportRevenueSEK)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Decisions: %d  Vetoes: %d  Conflicts resolved: %d\n",
		s.Decisions, s.Vetoes, s.ConflictsResolved)
	fmt.Fprintf(w, "Grid import: %.1f kWh  Grid export: %.1f kWh  Consumption: %.1f kWh\n",
		s.GridImportKWH, s.GridExportKWH, s.ConsumptionKWH)
	fmt.Fprintf(w, "Final state of charge: %.1f kWh\n", s.FinalSOCKWH)

	if len(s.Specialists) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "--- Specialists ---")
		names := make([]string, 0, len(s.Specialists))
		for name := range s.Specialists {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			m := s.Specialists[name]
			fmt.Fprintf(w, "%-14s calls=%-6d recommendations=%-6d value=%.2f SEK\n",
				name, m.Calls, m.Recommendations, m.TotalValueSEK)
		}
	}

	if len(s.MonthlyPeaks) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "--- Monthly billing peaks ---")
		for _, mp := range s.MonthlyPeaks {
			peaks := make([]string, len(mp.PeaksKW))
			for i, kw := range mp.PeaksKW {
				peaks[i] = fmt.Sprintf("%.1f", kw)
			}
			fmt.Fprintf(w, "%s  top: [%s] kW  avg: %.2f kW\n",
				mp.Month, strings.Join(peaks, ", "), mp.AverageKW)
		}
	}
}
