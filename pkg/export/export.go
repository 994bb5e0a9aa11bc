// Package export runs the scan loop over a reader.Source and writes the
// run summary (.txt), the chosen peak artifact and the scan list (.csv).
package export

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ChrisMcGann/rawexport/internal/logger"
	"github.com/ChrisMcGann/rawexport/pkg/core"
	"github.com/ChrisMcGann/rawexport/pkg/filter"
	"github.com/ChrisMcGann/rawexport/pkg/reader"
	"github.com/ChrisMcGann/rawexport/pkg/writer/atomic"
	"github.com/ChrisMcGann/rawexport/pkg/writer/mes"
	"github.com/ChrisMcGann/rawexport/pkg/writer/msx"
	"github.com/ChrisMcGann/rawexport/pkg/writer/scanlist"
	"github.com/ChrisMcGann/rawexport/pkg/writer/sqlite"
	"github.com/ChrisMcGann/rawexport/pkg/writer/umz"
)

// DefaultProgressEvery is the scan interval between progress log lines.
const DefaultProgressEvery = 10000

// Options configures an export.
type Options struct {
	OutputDir     string
	Labels        *core.LabelSet // nil = core.DefaultLabelSet
	Filter        filter.Config
	ProgressEvery int // 0 = DefaultProgressEvery, < 0 disables progress logs
}

// Summary describes a finished export.
type Summary struct {
	ExportID   string
	Input      string
	Format     Format
	Outputs    []string
	Scans      int
	Levels     map[core.Level]int
	EmptyScans int // scans written without centroid peaks
	Skipped    int // ids without a scan, of unknown level or filtered out
	Elapsed    time.Duration
}

// Exporter exports one opened source.
type Exporter struct {
	src     reader.Source
	adapter *reader.Adapter
	opts    Options
	log     logger.Logger
}

// New creates an exporter. Trailer fields are resolved here, once per source.
func New(src reader.Source, opts Options, log logger.Logger) *Exporter {
	if log == nil {
		log = logger.Default()
	}
	if opts.ProgressEvery == 0 {
		opts.ProgressEvery = DefaultProgressEvery
	}
	return &Exporter{
		src:     src,
		adapter: reader.NewAdapter(src, opts.Labels, log),
		opts:    opts,
		log:     log,
	}
}

// Head returns the run summary text written to .txt and into containers.
func (e *Exporter) Head() string {
	return fmt.Sprintf("Instrument: %s\nDuration: %s\n",
		reader.InstrumentLabel(e.src), core.FormatShortest(e.src.ExpectedRuntime()*60))
}

// Run exports the source, naming outputs after input's base name without its
// extension. Files are written in order: peak artifact, .txt, .csv.
func (e *Exporter) Run(input string, format Format) (*Summary, error) {
	if format.Extensions() == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	start := time.Now()
	sum := &Summary{
		ExportID: uuid.NewString(),
		Input:    input,
		Format:   format,
		Levels:   make(map[core.Level]int),
	}
	log := e.log.With("export_id", sum.ExportID, "format", format.String())

	if err := os.MkdirAll(e.opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	base := filepath.Join(e.opts.OutputDir, stem)

	missing := e.adapter.Fields().Missing()
	if len(missing) > 0 {
		names := make([]string, len(missing))
		for i, f := range missing {
			names[i] = f.String()
		}
		log.Debug("trailer fields not available", "fields", strings.Join(names, ","))
	}
	log.Info("exporting", "input", input, "explicit_master_scan", e.adapter.HasMasterScan())

	var list bytes.Buffer
	lw := scanlist.NewWriter(&list, format == FormatUMZ)
	if err := lw.WriteHeader(); err != nil {
		return nil, err
	}

	run := scanRun{e: e, log: log, sum: sum, list: lw}
	var err error
	switch format {
	case FormatUMZ:
		err = run.writeUMZ(base+".umz", e.Head(), &list)
	case FormatMSX:
		err = run.writeMSX(base+".ms1", base+".ms2")
	case FormatMES:
		err = run.writeMES(base+".mes", &list)
	case FormatDB:
		err = run.writeDB(base + ".db")
	}
	if err != nil {
		return nil, err
	}
	for _, ext := range format.Extensions() {
		sum.Outputs = append(sum.Outputs, base+ext)
	}

	if err := writeFile(base+".txt", []byte(e.Head())); err != nil {
		return nil, err
	}
	sum.Outputs = append(sum.Outputs, base+".txt")

	if err := lw.Flush(); err != nil {
		return nil, err
	}
	if err := writeFile(base+".csv", list.Bytes()); err != nil {
		return nil, err
	}
	sum.Outputs = append(sum.Outputs, base+".csv")

	sum.Elapsed = time.Since(start)
	log.Info("export complete", "scans", sum.Scans, "empty", sum.EmptyScans,
		"skipped", sum.Skipped, "elapsed", sum.Elapsed.Round(time.Millisecond))
	return sum, nil
}

func writeFile(path string, data []byte) error {
	return atomic.File(path, func(f *os.File) error {
		_, err := f.Write(data)
		return err
	})
}

// scanRun carries the state of one pass over the scan range.
type scanRun struct {
	e    *Exporter
	log  logger.Logger
	sum  *Summary
	list *scanlist.Writer
}

// each reads every scan in ascending id order, links precursors and passes
// the scans kept by the filter to fn.
func (r *scanRun) each(fn func(s *core.Scan) error) error {
	src := r.e.src
	fileFirst, fileLast := src.ScanRange()
	first, last := r.e.opts.Filter.Clamp(fileFirst, fileLast)
	if first > last {
		r.log.Warn("scan range selects no scans", "first", first, "last", last,
			"file_first", fileFirst, "file_last", fileLast)
		return nil
	}

	linker := core.NewLinker(r.e.adapter.HasMasterScan())
	if first > fileFirst {
		r.seedLinker(linker, fileFirst, first)
	}

	every := r.e.opts.ProgressEvery
	for id := first; id <= last; id++ {
		if every > 0 && id%every == 0 {
			r.log.Info("reading scan data", "scan", id, "last", last)
		}

		s, err := r.e.adapter.Read(id)
		if err != nil {
			if errors.Is(err, reader.ErrNoScan) {
				r.log.Debug("no scan for id", "scan", id)
				r.sum.Skipped++
				continue
			}
			return err
		}
		if s.Level == core.LevelUnknown {
			r.log.Warn("skipping scan of unknown level", "scan", id)
			r.sum.Skipped++
			continue
		}

		linker.Link(s)
		if !r.e.opts.Filter.Keep(s) {
			r.sum.Skipped++
			continue
		}
		if err := s.Validate(); err != nil {
			r.log.Warn("invalid scan data", "scan", id, "error", err)
		}

		r.sum.Scans++
		r.sum.Levels[s.Level]++
		if s.Peaks() == 0 {
			r.sum.EmptyScans++
		}
		if err := fn(s); err != nil {
			return err
		}
	}
	return nil
}

// seedLinker finds the last primary scan before a clamped range start so the
// first fragments of the range still link to their precursor.
func (r *scanRun) seedLinker(linker *core.Linker, fileFirst, first int) {
	_, fileLast := r.e.src.ScanRange()
	for id := min(first, fileLast+1) - 1; id >= fileFirst; id-- {
		ev, err := r.e.src.ScanEvent(id)
		if err != nil {
			continue
		}
		if ev.Level == core.LevelPrimary {
			linker.Link(&core.Scan{ID: id, Level: core.LevelPrimary})
			return
		}
	}
}

func (r *scanRun) writeUMZ(path, head string, list *bytes.Buffer) error {
	err := atomic.File(path, func(f *os.File) error {
		w, err := umz.NewWriter(f, head)
		if err != nil {
			return err
		}
		err = r.each(func(s *core.Scan) error {
			if err := w.WriteScan(s); err != nil {
				return err
			}
			return r.list.WriteScan(s)
		})
		if err != nil {
			return err
		}
		if err := r.list.Flush(); err != nil {
			return err
		}
		return w.Finalize(list.Bytes())
	})
	if err != nil {
		return err
	}
	r.log.Info("scan data saved", "path", path)
	return nil
}

func (r *scanRun) writeMSX(ms1, ms2 string) error {
	err := atomic.Files([]string{ms1, ms2}, func(files []*os.File) error {
		w := msx.NewWriter(files[0], files[1])
		err := r.each(func(s *core.Scan) error {
			if err := w.WriteScan(s); err != nil {
				return err
			}
			return r.list.WriteScan(s)
		})
		if err != nil {
			return err
		}
		return w.Flush()
	})
	if err != nil {
		return err
	}
	r.log.Info("MS1 data saved", "path", ms1)
	r.log.Info("MS2 data saved", "path", ms2)
	return nil
}

func (r *scanRun) writeMES(path string, list *bytes.Buffer) error {
	var scans []*core.Scan
	err := r.each(func(s *core.Scan) error {
		scans = append(scans, s)
		return r.list.WriteScan(s)
	})
	if err != nil {
		return err
	}
	if err := r.list.Flush(); err != nil {
		return err
	}

	err = atomic.File(path, func(f *os.File) error {
		return mes.Write(f, scans, list.Bytes())
	})
	if err != nil {
		return err
	}
	r.log.Info("scan data saved", "path", path)
	return nil
}

func (r *scanRun) writeDB(path string) error {
	err := atomic.Path(path, func(tmp string) error {
		w, err := sqlite.NewWriter(tmp)
		if err != nil {
			return err
		}
		if err := w.WriteHeader(r.e.src.InstrumentName(), r.e.src.ExpectedRuntime()*60); err != nil {
			w.Abort()
			return err
		}
		err = r.each(func(s *core.Scan) error {
			if err := w.WriteScan(s); err != nil {
				return err
			}
			return r.list.WriteScan(s)
		})
		if err != nil {
			w.Abort()
			return err
		}
		return w.Finalize()
	})
	if err != nil {
		return err
	}
	r.log.Info("scan library saved", "path", path)
	return nil
}
