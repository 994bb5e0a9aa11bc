package cmd

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ChrisMcGann/rawexport/pkg/core"
	"github.com/ChrisMcGann/rawexport/pkg/writer/scanlist"
	"github.com/ChrisMcGann/rawexport/pkg/writer/umz"
)

var (
	// Flags for inspect command
	inspectJSON bool
	inspectScan int
)

func init() {
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(validateCmd)

	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Print the report as JSON")
	inspectCmd.Flags().IntVar(&inspectScan, "scan", 0, "Print the peaks of one scan id")
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.umz>",
	Short: "Summarize an indexed container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := umz.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		if inspectScan > 0 {
			return printScanPeaks(os.Stdout, f, inspectScan)
		}

		report, err := buildReport(f)
		if err != nil {
			return err
		}
		report.Path = args[0]
		if inspectJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		printReport(os.Stdout, report)
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <file.umz>",
	Short: "Check the structure of an indexed container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := umz.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		if err := f.Verify(); err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		fmt.Printf("%s: OK\n", args[0])
		return nil
	},
}

// Report summarizes the contents of a container.
type Report struct {
	Path       string         `json:"path"`
	Size       int            `json:"size"`
	Version    uint64         `json:"version"`
	Head       umz.Region     `json:"head"`
	Meta       umz.Region     `json:"meta"`
	Data       umz.Region     `json:"data"`
	Summary    string         `json:"summary"`
	Scans      int            `json:"scans"`
	Levels     map[string]int `json:"levels"`
	WithNoise  int            `json:"with_noise"`
	Empty      int            `json:"empty"`
	PeakMean   float64        `json:"peak_mean"`
	PeakStdDev float64        `json:"peak_stddev"`
	PeakMax    float64        `json:"peak_max"`
	FirstScan  int            `json:"first_scan"`
	LastScan   int            `json:"last_scan"`
}

func buildReport(f *umz.File) (Report, error) {
	entries, err := f.Entries()
	if err != nil {
		return Report{}, err
	}

	h := f.Header()
	r := Report{
		Size:    f.Size(),
		Version: h.Version,
		Head:    h.Head,
		Meta:    h.Meta,
		Data:    h.Data,
		Summary: f.Head(),
		Scans:   len(entries),
		Levels:  make(map[string]int),
	}

	counts := make([]float64, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		r.Levels[e.Scan.Level.String()]++
		if e.HasNoise() {
			r.WithNoise++
		}
		if e.Peaks() == 0 {
			r.Empty++
		}
		counts = append(counts, float64(e.Peaks()))
	}
	if len(entries) > 0 {
		r.FirstScan = entries[0].Scan.ID
		r.LastScan = entries[len(entries)-1].Scan.ID
		r.PeakMax = floats.Max(counts)
		r.PeakMean, r.PeakStdDev = stat.MeanStdDev(counts, nil)
		if math.IsNaN(r.PeakStdDev) {
			r.PeakStdDev = 0
		}
	}
	return r, nil
}

func printReport(w io.Writer, r Report) {
	fmt.Fprintf(w, "UMZ Inspect: %s\n", r.Path)
	fmt.Fprintf(w, "Size: %d bytes, version %d\n", r.Size, r.Version)
	fmt.Fprintf(w, "  head  offset %-12d length %d\n", r.Head.Offset, r.Head.Length)
	fmt.Fprintf(w, "  data  offset %-12d length %d\n", r.Data.Offset, r.Data.Length)
	fmt.Fprintf(w, "  meta  offset %-12d length %d\n", r.Meta.Offset, r.Meta.Length)
	fmt.Fprintln(w)
	fmt.Fprint(w, r.Summary)
	if !strings.HasSuffix(r.Summary, "\n") {
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Scans: %d (ids %d-%d)\n", r.Scans, r.FirstScan, r.LastScan)
	names := make([]string, 0, len(r.Levels))
	for name := range r.Levels {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-4s %d\n", name, r.Levels[name])
	}
	fmt.Fprintf(w, "Peaks per scan: mean %.1f, stddev %.1f, max %.0f\n", r.PeakMean, r.PeakStdDev, r.PeakMax)
	fmt.Fprintf(w, "Scans with noise: %d, without peaks: %d\n", r.WithNoise, r.Empty)
}

func printScanPeaks(w io.Writer, f *umz.File, id int) error {
	entries, err := f.Entries()
	if err != nil {
		return err
	}
	var entry *scanlist.Entry
	for i := range entries {
		if entries[i].Scan.ID == id {
			entry = &entries[i]
			break
		}
	}
	if entry == nil {
		return fmt.Errorf("scan %d not in container", id)
	}

	mass, inten, noise, err := f.Peaks(*entry)
	if err != nil {
		return err
	}
	s := &entry.Scan
	fmt.Fprintf(w, "Scan %d %s rt=%s s peaks=%d\n", s.ID, s.Level, core.FormatF4(s.RetentionTime), len(mass))
	if s.Level.Tandem() {
		fmt.Fprintf(w, "Precursor scan %d, m/z %s, charge %d\n", s.PrecursorScan, core.FormatF4(s.PrecursorMZ), s.PrecursorCharge)
	}
	for i := range mass {
		n := 0.0
		if i < len(noise) {
			n = core.RoundFloat(noise[i], 2)
		}
		fmt.Fprintf(w, "%.4f\t%g\t%g\n", mass[i], core.RoundFloat(inten[i], 2), n)
	}
	return nil
}
