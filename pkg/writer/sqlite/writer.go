// Package sqlite provides SQLite database writing for scan libraries
package sqlite

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/ChrisMcGann/rawexport/pkg/core"
	_ "github.com/mattn/go-sqlite3"
)

const (
	// SchemaVersion is stored in HeaderTable.version.
	SchemaVersion = 1

	// Date format for HeaderTable (ISO 8601)
	headerDateFormat = "2006-01-02"
)

// Writer handles writing scans to SQLite database files
type Writer struct {
	db         *sql.DB
	tx         *sql.Tx
	outputPath string
	scanStmt   *sql.Stmt
	count      int
}

// NewWriter creates a new SQLite writer. All inserts run in one transaction
// that is committed by Finalize.
func NewWriter(outputPath string) (*Writer, error) {
	db, err := sql.Open("sqlite3", outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	w := &Writer{
		db:         db,
		outputPath: outputPath,
	}

	if err := w.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	w.tx, err = db.Begin()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := w.prepareStatements(); err != nil {
		w.tx.Rollback()
		db.Close()
		return nil, err
	}

	return w, nil
}

// createTables creates the required database schema
func (w *Writer) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS HeaderTable (
		version INTEGER NOT NULL DEFAULT 0,
		CreationDate TEXT,
		InstrumentName TEXT,
		Duration DOUBLE,
		ScanCount INTEGER
	);

	CREATE TABLE IF NOT EXISTS ScanTable (
		ScanId INTEGER PRIMARY KEY,
		ScanType TEXT,
		MSLevel INTEGER,
		ScanMode TEXT,
		ScanDescription TEXT,
		TotalIonCurrent DOUBLE,
		BasePeakIntensity DOUBLE,
		BasePeakMass DOUBLE,
		RetentionTime DOUBLE,
		IonInjectionTime DOUBLE,
		MassAnalyzer TEXT,
		PrecursorScan INTEGER,
		ActivationCenter DOUBLE,
		IsolationWidth DOUBLE,
		IsolationOffset DOUBLE,
		PrecursorMZ DOUBLE,
		PrecursorCharge INTEGER,
		ChargeMass DOUBLE,
		RawOvFtT DOUBLE,
		PeakCount INTEGER,
		blobMass BLOB,
		blobIntensity BLOB,
		blobNoises BLOB
	);

	CREATE INDEX IF NOT EXISTS idx_scan_precursor ON ScanTable(PrecursorScan);
	`

	_, err := w.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// prepareStatements prepares SQL statements for batch insertion
func (w *Writer) prepareStatements() error {
	var err error

	w.scanStmt, err = w.tx.Prepare(`
		INSERT INTO ScanTable (
			ScanId, ScanType, MSLevel, ScanMode, ScanDescription,
			TotalIonCurrent, BasePeakIntensity, BasePeakMass, RetentionTime,
			IonInjectionTime, MassAnalyzer, PrecursorScan, ActivationCenter,
			IsolationWidth, IsolationOffset, PrecursorMZ, PrecursorCharge,
			ChargeMass, RawOvFtT, PeakCount, blobMass, blobIntensity, blobNoises
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare scan statement: %w", err)
	}

	return nil
}

// WriteHeader writes the run summary row.
func (w *Writer) WriteHeader(instrument string, duration float64) error {
	_, err := w.tx.Exec(`
		INSERT INTO HeaderTable (version, CreationDate, InstrumentName, Duration, ScanCount)
		VALUES (?, ?, ?, ?, ?)
	`, SchemaVersion, time.Now().Format(headerDateFormat), instrument, duration, 0)
	if err != nil {
		return fmt.Errorf("failed to insert header: %w", err)
	}
	return nil
}

// WriteScan writes a single scan to the database
func (w *Writer) WriteScan(s *core.Scan) error {
	// Tandem columns stay NULL for primary scans
	var precursorScan, activation, width, offset, precursorMZ, charge, chargeMass interface{}
	if s.Level.Tandem() {
		precursorScan = s.PrecursorScan
		activation = s.ActivationCenter
		width = s.IsolationWidth
		offset = s.IsolationOffset
		precursorMZ = s.PrecursorMZ
		charge = s.PrecursorCharge
		chargeMass = core.ChargeMass(s.PrecursorMZ, s.PrecursorCharge)
	}

	var analyzer interface{}
	if s.Analyzer != "" {
		analyzer = s.Analyzer
	}

	// Noise is optional; an empty array is stored as NULL
	var noiseBlob interface{}
	if len(s.Noise) > 0 {
		noiseBlob = encodeFloat64(s.Noise)
	}

	_, err := w.scanStmt.Exec(
		s.ID,                       // ScanId
		s.Level.String(),           // ScanType
		int(s.Level),               // MSLevel
		s.ScanMode,                 // ScanMode
		s.Description,              // ScanDescription
		s.TotalIonCurrent,          // TotalIonCurrent
		s.BasePeakIntensity,        // BasePeakIntensity
		s.BasePeakMass,             // BasePeakMass
		s.RetentionTime,            // RetentionTime
		s.InjectionTime,            // IonInjectionTime
		analyzer,                   // MassAnalyzer
		precursorScan,              // PrecursorScan
		activation,                 // ActivationCenter
		width,                      // IsolationWidth
		offset,                     // IsolationOffset
		precursorMZ,                // PrecursorMZ
		charge,                     // PrecursorCharge
		chargeMass,                 // ChargeMass
		s.OvFtT,                    // RawOvFtT
		s.Peaks(),                  // PeakCount
		encodeFloat64(s.Mass),      // blobMass
		encodeFloat64(s.Intensity), // blobIntensity
		noiseBlob,                  // blobNoises
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s: %w", s.Name(), err)
	}

	w.count++
	return nil
}

// encodeFloat64 encodes values as a little-endian float64 blob
func encodeFloat64(values []float64) []byte {
	buf := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// DecodeFloat64 decodes a blob written by the writer.
func DecodeFloat64(blob []byte) ([]float64, error) {
	if len(blob)%8 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 8", len(blob))
	}
	out := make([]float64, len(blob)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(blob[i*8:]))
	}
	return out, nil
}

// Count returns the number of scans written.
func (w *Writer) Count() int {
	return w.count
}

// Finalize records the scan count, commits and closes the database
func (w *Writer) Finalize() error {
	if w.db == nil {
		return nil
	}
	defer func() { w.db = nil }()

	if _, err := w.tx.Exec(`UPDATE HeaderTable SET ScanCount = ?`, w.count); err != nil {
		w.abort()
		return fmt.Errorf("failed to update header: %w", err)
	}

	if w.scanStmt != nil {
		w.scanStmt.Close()
	}

	if err := w.tx.Commit(); err != nil {
		w.db.Close()
		return fmt.Errorf("failed to commit: %w", err)
	}

	// Close database
	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

// Abort rolls back everything written and closes the database.
func (w *Writer) Abort() error {
	if w.db == nil {
		return nil
	}
	err := w.abort()
	w.db = nil
	return err
}

func (w *Writer) abort() error {
	if w.scanStmt != nil {
		w.scanStmt.Close()
	}
	w.tx.Rollback()
	return w.db.Close()
}
