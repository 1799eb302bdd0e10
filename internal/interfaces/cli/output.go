package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	types "github.com/turtacn/KeyIP-FamilyExplorer/pkg/types/exploration"
)

// render prints data as JSON or YAML, or calls table for the table format.
func render(cmd *cobra.Command, cc *CLIContext, data interface{}, table func(w io.Writer) error) error {
	out := cmd.OutOrStdout()
	switch cc.OutputFormat {
	case "json":
		return printJSON(out, data)
	case "yaml":
		return printYAML(out, data)
	default:
		return table(out)
	}
}

func printJSON(w io.Writer, data interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// printYAML goes through JSON first so that the keys match the API.
func printYAML(w io.Writer, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

func writeTable(w io.Writer, headers []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	hdr := make([]any, len(headers))
	for i, h := range headers {
		hdr[i] = h
	}
	table.Header(hdr...)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

func colorizeZone(zone string) string {
	switch zone {
	case "member":
		return color.GreenString(zone)
	case "expansion":
		return color.YellowString(zone)
	case "rejected":
		return color.RedString(zone)
	default:
		return zone
	}
}

func colorizeStatus(status, override string) string {
	s := status
	if override != "" {
		s += "*"
	}
	switch status {
	case "member":
		return color.GreenString(s)
	case "excluded":
		return color.RedString(s)
	default:
		return s
	}
}

func formatScore(v float64) string {
	return fmt.Sprintf("%.1f", v)
}

func truncateString(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

func candidateRows(cands []types.Candidate) [][]string {
	rows := make([][]string, 0, len(cands))
	for _, c := range cands {
		rows = append(rows, []string{
			c.PatentID,
			formatScore(c.Composite),
			colorizeZone(c.Zone),
			colorizeStatus(c.Status, c.Override),
			fmt.Sprintf("%d", c.Generation),
			strings.Join(c.Relations, ","),
			truncateString(c.Assignee, 24),
			truncateString(c.Title, 40),
		})
	}
	return rows
}

var candidateHeaders = []string{"Patent", "Score", "Zone", "Status", "Gen", "Relations", "Assignee", "Title"}

// sortCandidates orders by composite descending, then id.
func sortCandidates(cands []types.Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Composite != cands[j].Composite {
			return cands[i].Composite > cands[j].Composite
		}
		return cands[i].PatentID < cands[j].PatentID
	})
}

func filterCandidates(cands []types.Candidate, zone, status string) []types.Candidate {
	if zone == "" && status == "" {
		return cands
	}
	out := make([]types.Candidate, 0, len(cands))
	for _, c := range cands {
		if zone != "" && c.Zone != zone {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, c)
	}
	return out
}

func writeStep(w io.Writer, s types.Step) {
	fmt.Fprintf(w, "step %d (%s", s.Number, s.Kind)
	if s.Direction != "" {
		fmt.Fprintf(w, ", %s", s.Direction)
	}
	fmt.Fprintf(w, ") generation %d: evaluated %d, accepted %d, expansion %d, rejected %d, pruned %d\n",
		s.Generation, s.Evaluated, s.Accepted, s.ExpansionZone, s.Rejected, s.Pruned)
}

func writeWarnings(w io.Writer, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	yellow := color.New(color.FgYellow).SprintFunc()
	for _, msg := range warnings {
		fmt.Fprintf(w, "%s %s\n", yellow("warning:"), msg)
	}
}

func writeResult(w io.Writer, res *types.ExpansionResult) error {
	writeStep(w, res.Step)
	fmt.Fprintf(w, "exploration %s now at generation %d (version %d), frontier %d\n",
		res.ExplorationID, res.Generation, res.Version, len(res.Frontier))
	writeWarnings(w, res.Warnings)
	if len(res.Candidates) == 0 {
		return nil
	}
	cands := append([]types.Candidate(nil), res.Candidates...)
	sortCandidates(cands)
	return writeTable(w, candidateHeaders, candidateRows(cands))
}

func writeExploration(w io.Writer, e *types.Exploration, cands []types.Candidate) error {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(w, "%s %s", bold("Exploration"), e.ID)
	if e.Name != "" {
		fmt.Fprintf(w, " (%s)", e.Name)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  seeds:       %s\n", strings.Join(e.SeedIDs, ", "))
	if len(e.AggregateIDs) > len(e.SeedIDs) {
		fmt.Fprintf(w, "  aggregate:   %d patents\n", len(e.AggregateIDs))
	}
	fmt.Fprintf(w, "  generation:  %d (version %d)\n", e.CurrentGeneration, e.Version)
	fmt.Fprintf(w, "  thresholds:  membership %.1f, expansion %.1f\n", e.Thresholds.Membership, e.Thresholds.Expansion)
	fmt.Fprintf(w, "  members:     %d of %d candidates, frontier %d\n", len(e.Members), len(e.Candidates), len(e.Frontier))
	if e.Archived {
		fmt.Fprintf(w, "  archived:    %s\n", e.ArchiveKey)
	}
	for _, s := range e.Steps {
		fmt.Fprint(w, "  ")
		writeStep(w, s)
	}
	if len(cands) == 0 {
		return nil
	}
	return writeTable(w, candidateHeaders, candidateRows(cands))
}
