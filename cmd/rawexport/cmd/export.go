package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/rawexport/internal/logger"
	"github.com/ChrisMcGann/rawexport/pkg/core"
	"github.com/ChrisMcGann/rawexport/pkg/export"
	"github.com/ChrisMcGann/rawexport/pkg/filter"
	"github.com/ChrisMcGann/rawexport/pkg/reader"
	_ "github.com/ChrisMcGann/rawexport/pkg/reader/mzml"
)

var (
	// Flags for export command
	formatToken    string
	outputDir      string
	scanRange      string
	levelList      string
	fieldLabelsCSV string
	progressEvery  int
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&formatToken, "format", "f", "umz", "Output format: "+strings.Join(export.Formats(), ", "))
	exportCmd.Flags().StringVarP(&outputDir, "out", "o", "", "Output directory (default: next to each input)")
	exportCmd.Flags().StringVar(&scanRange, "scans", "", "Scan id range to export, e.g. 100:2000")
	exportCmd.Flags().StringVar(&levelList, "levels", "", "Comma-separated MS levels to write, e.g. 1,2 (default all)")
	exportCmd.Flags().StringVar(&fieldLabelsCSV, "field-labels", "", "CSV file with extra trailer labels (field,label)")
	exportCmd.Flags().IntVar(&progressEvery, "progress-every", export.DefaultProgressEvery, "Log progress every N scans (negative disables)")
}

var exportCmd = &cobra.Command{
	Use:   "export [files...]",
	Short: "Export scans to umz, msx, mes or db",
	Long: `Export every scan of each input file. Next to the format artifact, each
export writes <name>.txt (instrument and duration) and <name>.csv (scan list).

Examples:
  # Indexed binary container in ./out
  rawexport export --out out run1.mzML run2.mzML

  # Text interchange pair, fragment scans 1000-5000 only
  rawexport export -f msx --scans 1000:5000 --levels 2 run1.mzML

  # Instruments with different trailer labels
  rawexport export --field-labels labels.csv run1.mzML`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	config.applyExport(cmd)

	format, err := export.ParseFormat(formatToken)
	if err != nil {
		// Not fatal: report and write nothing
		fmt.Printf("unsupported output format: %s\n", formatToken)
		return nil
	}

	labels := core.DefaultLabelSet()
	if fieldLabelsCSV != "" {
		if err := loadLabels(labels, fieldLabelsCSV); err != nil {
			return err
		}
	}

	minScan, maxScan, err := filter.ParseRange(scanRange)
	if err != nil {
		return err
	}
	levels, err := filter.ParseLevels(levelList)
	if err != nil {
		return err
	}

	log := newLogger()
	for _, input := range args {
		opts := export.Options{
			OutputDir:     outputDir,
			Labels:        labels,
			Filter:        filter.Config{MinScan: minScan, MaxScan: maxScan, Levels: levels},
			ProgressEvery: progressEvery,
		}
		if opts.OutputDir == "" {
			opts.OutputDir = filepath.Dir(input)
		}
		if err := exportFile(input, format, opts, log); err != nil {
			return err
		}
	}
	return nil
}

func exportFile(input string, format export.Format, opts export.Options, log logger.Logger) error {
	fmt.Printf("loading %s\n", input)
	src, err := reader.Open(input)
	if err != nil {
		return err
	}
	defer src.Close()

	sum, err := export.New(src, opts, log).Run(input, format)
	if err != nil {
		return fmt.Errorf("%s: %w", input, err)
	}

	for _, p := range sum.Outputs {
		fmt.Printf("saved %s\n", p)
	}
	fmt.Printf("Exported %d scans (%s) in %s\n", sum.Scans, levelCounts(sum.Levels), sum.Elapsed.Round(time.Millisecond))
	if sum.EmptyScans > 0 {
		fmt.Printf("  %d scans without centroid data\n", sum.EmptyScans)
	}
	if sum.Skipped > 0 {
		fmt.Printf("  %d scan ids skipped\n", sum.Skipped)
	}
	log.Info("export finished", "input", input, "export_id", sum.ExportID)
	return nil
}

func loadLabels(set *core.LabelSet, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open field labels: %w", err)
	}
	defer f.Close()

	if err := set.LoadFromCSV(f); err != nil {
		return fmt.Errorf("field labels %s: %w", path, err)
	}
	return nil
}

// levelCounts renders per-level counts like "MS1: 10, MS2: 40".
func levelCounts(levels map[core.Level]int) string {
	keys := make([]core.Level, 0, len(levels))
	for l := range levels {
		keys = append(keys, l)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	parts := make([]string, len(keys))
	for i, l := range keys {
		parts[i] = fmt.Sprintf("%s: %d", l, levels[l])
	}
	return strings.Join(parts, ", ")
}
