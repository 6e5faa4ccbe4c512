package cmd

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhcgn/chatlog-reconstruct/attachment"
	"github.com/dhcgn/chatlog-reconstruct/fetch"
	"github.com/dhcgn/chatlog-reconstruct/filter"
	"github.com/dhcgn/chatlog-reconstruct/model"
	"github.com/dhcgn/chatlog-reconstruct/parser"
	"github.com/dhcgn/chatlog-reconstruct/reconcile"
	"github.com/dhcgn/chatlog-reconstruct/stats"
)

const (
	categoryHost      = "Host"
	categoryExtension = "Extension"
)

var reportCategories = []string{categoryHost, categoryExtension}

func newAttachmentsCmd() *cobra.Command {
	var (
		reportDir  string
		topN       int
		list       bool
		includeRef []string
		excludeRef []string
	)

	cmd := &cobra.Command{
		Use:   "attachments [messages file...]",
		Short: "List the attachment references of message logs and show statistics",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.Default()

			f, err := filter.New(filter.Options{Include: includeRef, Exclude: excludeRef})
			if err != nil {
				return fmt.Errorf("create filter: %w", err)
			}

			var records []model.Record
			for _, p := range args {
				fmt.Println("Analyzing message log:", p)
				records = reconcile.Reconcile(records, parser.ParseFile(p, logger), logger)
			}

			all := attachment.ExtractUnique(records)
			refs, dropped := f.Apply(all)

			var filterPercent float64
			if len(all) > 0 {
				filterPercent = float64(len(dropped)) / float64(len(all)) * 100
			}
			fmt.Printf("Found %d unique references in %d messages (skipped %d by filters, %.2f%%)\n\n", len(refs), len(records), len(dropped), filterPercent)

			if list {
				for i, ref := range refs {
					fmt.Printf("%d. %s\n", i+1, ref)
				}
				fmt.Println()
			}

			counter := countReferences(refs)
			for _, category := range reportCategories {
				fmt.Printf("Top %d %s:\n", topN, category)
				stats.PrettyPrintTop(counter[category], topN)
				fmt.Println()
			}

			if reportDir == "" {
				return nil
			}
			if err := saveCSVReports(counter, reportCategories, reportDir, 1000); err != nil {
				return fmt.Errorf("error saving CSV reports: %w", err)
			}
			if err := saveReferenceList(refs, reportDir); err != nil {
				return fmt.Errorf("error saving reference list: %w", err)
			}

			fmt.Printf("Reports saved to directory: %s\n", reportDir)
			return nil
		},
	}

	cmd.Flags().StringVarP(&reportDir, "output", "o", "", "Output directory for CSV reports (none when empty)")
	cmd.Flags().IntVarP(&topN, "top", "t", 10, "Number of top items to display in statistics")
	cmd.Flags().BoolVar(&list, "list", false, "Print every reference in download order")
	cmd.Flags().StringArrayVar(&includeRef, "include-ref", nil, "Regex allow-list applied to references (mutually exclusive with --exclude-ref)")
	cmd.Flags().StringArrayVar(&excludeRef, "exclude-ref", nil, "Regex block-list applied to references (mutually exclusive with --include-ref)")
	return cmd
}

// countReferences tallies references per host and per file extension. Bare
// file names count under "(local)".
func countReferences(refs []string) map[string]map[string]int {
	counter := make(map[string]map[string]int, len(reportCategories))
	for _, c := range reportCategories {
		counter[c] = make(map[string]int)
	}

	for _, ref := range refs {
		host := "(local)"
		if u, err := url.Parse(ref); err == nil && u.Host != "" {
			host = strings.ToLower(u.Host)
		}
		counter[categoryHost][host]++

		ext := strings.ToLower(path.Ext(fetch.FileName(ref)))
		if ext == "" {
			ext = "(none)"
		}
		counter[categoryExtension][ext]++
	}
	return counter
}

func saveCSVReports(counter map[string]map[string]int, categories []string, dir string, limit int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, category := range categories {
		filePath := filepath.Join(dir, fmt.Sprintf("report_%s.csv", normalizeCategory(category)))
		rows := [][]string{{"Value", "Count"}}
		for _, p := range stats.Top(counter[category], limit) {
			rows = append(rows, []string{p.Key, strconv.Itoa(p.Value)})
		}
		if err := writeCSV(filePath, rows); err != nil {
			return err
		}
	}
	return nil
}

func saveReferenceList(refs []string, dir string) error {
	rows := [][]string{{"Counter", "FileName", "Reference"}}
	for i, ref := range refs {
		rows = append(rows, []string{strconv.Itoa(i + 1), fetch.FileName(ref), ref})
	}
	return writeCSV(filepath.Join(dir, "report_references.csv"), rows)
}

func writeCSV(filePath string, rows [][]string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(file)
	if err := writer.WriteAll(rows); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func normalizeCategory(category string) string {
	name := strings.ToLower(category)
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, " ", "_")
	return name
}
