package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/hubeiqiao/Literature-screening/internal/bib"
	"github.com/hubeiqiao/Literature-screening/internal/criteria"
	"github.com/hubeiqiao/Literature-screening/internal/model"
	"github.com/hubeiqiao/Literature-screening/internal/triage"
)

var screenCmd = &cobra.Command{
	Use:   "screen <file.bib>",
	Short: "Screen a BibTeX file offline with deterministic rules",
	Long: `Parses a BibTeX export and classifies every entry against the
inclusion/exclusion criteria using rule matching only. No model calls, no
network, no billing.

Examples:
  # Screen with the built-in criteria
  screen references.bib

  # Screen with custom criteria files
  screen references.bib --inclusion inc.txt --exclusion exc.txt

  # Only print entries that need human review
  screen references.bib --status Maybe

  # Machine-readable output
  screen references.bib --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runScreen,
}

func init() {
	f := screenCmd.Flags()
	f.String("inclusion", "", "path to inclusion criteria text (default: built-in)")
	f.String("exclusion", "", "path to exclusion criteria text (default: built-in)")
	f.String("status", "", "only print entries with this status (Include, Exclude, Maybe)")
	f.String("format", "table", "output format: table, csv, or json")
	f.String("output", "", "output file path (default: stdout)")

	rootCmd.AddCommand(screenCmd)
}

func runScreen(cmd *cobra.Command, args []string) error {
	content, err := os.ReadFile(args[0])
	if err != nil {
		return eris.Wrapf(err, "screen: read %s", args[0])
	}

	records := bib.Parse(string(content))
	if len(records) == 0 {
		return eris.Errorf("screen: no BibTeX entries found in %s", args[0])
	}

	crit, err := loadCriteria(cmd)
	if err != nil {
		return err
	}

	statusFilter, _ := cmd.Flags().GetString("status")
	format, _ := cmd.Flags().GetString("format")
	outputPath, _ := cmd.Flags().GetString("output")

	if format != "table" && format != "csv" && format != "json" {
		return eris.Errorf("screen: --format must be table, csv, or json (got %q)", format)
	}

	var decisions []model.TriageDecision
	for _, record := range records {
		decision := triage.Classify(record, crit).Decision(record)
		if statusFilter != "" && !strings.EqualFold(statusFilter, string(decision.Status)) {
			continue
		}
		decisions = append(decisions, decision)
	}

	w := os.Stdout
	if outputPath != "" {
		w, err = os.Create(outputPath)
		if err != nil {
			return eris.Wrapf(err, "screen: create output file %s", outputPath)
		}
		defer w.Close() //nolint:errcheck
	}

	switch format {
	case "json":
		if err := writeDecisionJSON(w, decisions); err != nil {
			return err
		}
	case "csv":
		if err := writeDecisionCSV(w, decisions); err != nil {
			return err
		}
	default:
		writeDecisionTable(w, decisions)
	}

	if outputPath == "" && format == "table" {
		printScreenSummary(decisions)
	}
	return nil
}

func loadCriteria(cmd *cobra.Command) (criteria.Criteria, error) {
	inclusionPath, _ := cmd.Flags().GetString("inclusion")
	exclusionPath, _ := cmd.Flags().GetString("exclusion")

	text := criteria.DefaultText()
	if inclusionPath != "" {
		data, err := os.ReadFile(inclusionPath)
		if err != nil {
			return criteria.Criteria{}, eris.Wrapf(err, "screen: read inclusion criteria %s", inclusionPath)
		}
		text.Inclusion = string(data)
	}
	if exclusionPath != "" {
		data, err := os.ReadFile(exclusionPath)
		if err != nil {
			return criteria.Criteria{}, eris.Wrapf(err, "screen: read exclusion criteria %s", exclusionPath)
		}
		text.Exclusion = string(data)
	}

	return criteria.BuildFromText(text), nil
}

func writeDecisionJSON(w *os.File, decisions []model.TriageDecision) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{
		"decisions": decisions,
		"summary":   triage.Summarize(decisions),
	}); err != nil {
		return eris.Wrap(err, "screen: encode JSON")
	}
	return nil
}

func writeDecisionCSV(w *os.File, decisions []model.TriageDecision) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"key", "type", "year", "status", "confidence", "title"}
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "screen: write CSV header")
	}

	for _, d := range decisions {
		row := []string{
			d.Key,
			d.Type,
			d.Year,
			string(d.Status),
			strconv.FormatFloat(d.Confidence, 'f', 2, 64),
			d.Title,
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "screen: write CSV row")
		}
	}
	return nil
}

func writeDecisionTable(w *os.File, decisions []model.TriageDecision) {
	fmt.Fprintf(w, "%-30s %-8s %-6s %-10s %s\n", "KEY", "STATUS", "CONF", "YEAR", "TITLE")
	for _, d := range decisions {
		title := d.Title
		if len(title) > 60 {
			title = title[:57] + "..."
		}
		fmt.Fprintf(w, "%-30s %-8s %-6.2f %-10s %s\n", d.Key, d.Status, d.Confidence, d.Year, title)
	}
}

func printScreenSummary(decisions []model.TriageDecision) {
	summary := triage.Summarize(decisions)
	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Total:   %d\n", summary.Total)
	for _, status := range []model.TriageStatus{model.StatusInclude, model.StatusMaybe, model.StatusExclude} {
		fmt.Printf("%-8s %d\n", string(status)+":", summary.ByStatus[string(status)])
	}
}
