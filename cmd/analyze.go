package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/HillviewCap/ferrocodex-sub002/config"
	"github.com/HillviewCap/ferrocodex-sub002/models"

	"github.com/spf13/cobra"
)

var analyzeJSON bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze [firmware file]",
	Short: "Analyze a firmware file without persisting results",
	Long: `Run the analysis pipeline against a local firmware file and print the
results. Nothing is written to the database; this is meant for ad-hoc
inspection before registering a firmware version.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print results as JSON")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read firmware file: %w", err)
	}

	result, err := buildAnalyzer(cfg).Analyze(context.Background(), data)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	if analyzeJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}

	printAnalysisResult(args[0], int64(len(data)), result)
	return nil
}

func printAnalysisResult(path string, size int64, result *models.AnalysisResult) {
	fmt.Printf("Firmware: %s (%d bytes)\n", path, size)
	fmt.Printf("File type: %s\n", result.FileType)
	fmt.Printf("Entropy:   %.4f\n", result.EntropyScore)

	if len(result.DetectedVersions) > 0 {
		fmt.Println("\nDetected versions:")
		for _, version := range result.DetectedVersions {
			fmt.Printf("  - %s\n", version)
		}
	}

	if len(result.SecurityFindings) == 0 {
		fmt.Println("\nNo security findings.")
		return
	}

	fmt.Printf("\nSecurity findings (%d):\n", len(result.SecurityFindings))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "Severity\tType\tOffset\tDescription")
	fmt.Fprintln(w, "--------\t----\t------\t-----------")
	for _, finding := range result.SecurityFindings {
		offset := "-"
		if finding.Offset != nil {
			offset = fmt.Sprintf("0x%x", *finding.Offset)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", finding.Severity, finding.FindingType, offset, finding.Description)
	}
	w.Flush()
}
