package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smukkama/carbon-footprint/internal/emissions"
	"github.com/smukkama/carbon-footprint/internal/history"
)

func calculateCmd() *cobra.Command {
	values := make(map[string]*string, len(emissions.Fields))
	var advice bool

	cmd := &cobra.Command{
		Use:   "calculate",
		Short: "Calculate and record today's emissions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			p, err := e.pipeline(cmd.Context())
			if err != nil {
				return err
			}
			defer p.Close()

			raw := emissions.RawInput{}
			for field, v := range values {
				if cmd.Flags().Changed(flagName(field)) {
					raw[field] = *v
				}
			}

			res, err := p.Process(cmd.Context(), raw)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, c := range res.Diagnostics.Corrections {
				if c.Reason != emissions.ReasonMissing {
					printf(out, "warning: %s=%v is %s, using 0\n", c.Field, c.Value, c.Reason)
				}
			}
			b := res.Breakdown
			printf(out, "Transport:   %8.2f kg CO2\n", b.Transport)
			printf(out, "Energy:      %8.2f kg CO2\n", b.Energy)
			printf(out, "Diet:        %8.2f kg CO2\n", b.Diet)
			printf(out, "Daily total: %8.2f kg CO2\n", b.Total)
			printf(out, "Yearly:      %8.2f kg CO2\n", b.YearlyTotal)

			if advice {
				printf(out, "%s\n", p.Recommend(cmd.Context(), res))
			}
			return nil
		},
	}

	for _, field := range emissions.Fields {
		values[field] = cmd.Flags().String(flagName(field), "", fmt.Sprintf("daily %s", strings.ReplaceAll(field, "_", " ")))
	}
	cmd.Flags().BoolVar(&advice, "advice", false, "print reduction recommendations")
	return cmd
}

func flagName(field string) string {
	return strings.ReplaceAll(field, "_", "-")
}

func analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Analyze the recorded history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			p, err := e.pipeline(cmd.Context())
			if err != nil {
				return err
			}
			defer p.Close()

			res, err := p.AnalyzeHistory(cmd.Context())
			if err != nil {
				return err
			}
			if res == nil {
				printf(cmd.OutOrStdout(), "Not enough history to analyze yet.\n")
				return nil
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}

func newsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "news",
		Short: "Show recent sustainability news",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			p, err := e.pipeline(cmd.Context())
			if err != nil {
				return err
			}
			defer p.Close()

			articles := p.News(cmd.Context())
			out := cmd.OutOrStdout()
			if len(articles) == 0 {
				printf(out, "No news available.\n")
				return nil
			}
			for _, a := range articles {
				printf(out, "%s (%s)\n  %s\n  %s\n\n", a.Title, a.Source, a.Summary, a.URL)
			}
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the history as CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			records, err := e.store.All(cmd.Context())
			if err != nil {
				return err
			}

			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", path, err)
			}
			defer f.Close()

			if err := history.WriteCSV(f, records); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Exported %d records to %s\n", len(records), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "csv", "history_export.csv", "output file")
	return cmd
}

func importCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Append records from a CSV file to the history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", path, err)
			}
			defer f.Close()

			table, err := history.ReadCSV(f)
			if err != nil {
				return err
			}

			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			records := table.Records()
			for _, rec := range records {
				if err := e.store.Append(cmd.Context(), rec); err != nil {
					return err
				}
			}
			printf(cmd.OutOrStdout(), "Imported %d records from %s\n", len(records), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "csv", "", "input file")
	cmd.MarkFlagRequired("csv")
	return cmd
}
