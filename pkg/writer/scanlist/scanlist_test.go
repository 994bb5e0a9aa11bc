package scanlist

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ChrisMcGann/rawexport/pkg/core"
)

func primaryScan() *core.Scan {
	return &core.Scan{
		ID:                10,
		Level:             core.LevelPrimary,
		Analyzer:          core.AnalyzerFTMS,
		ScanMode:          "FTMS + p NSI Full ms",
		TotalIonCurrent:   3000,
		BasePeakIntensity: 2000,
		BasePeakMass:      200.25,
		RetentionTime:     30,
		InjectionTime:     12.5,
		OvFtT:             1.5,
		Mass:              []float64{100.5, 200.25},
		Intensity:         []float64{1000, 2000},
		Noise:             []float64{},
		IndexMZ:           64,
		IndexIntensity:    80,
		IndexNoise:        96,
	}
}

func fragmentScan() *core.Scan {
	return &core.Scan{
		ID:               11,
		Level:            core.LevelFragment,
		Analyzer:         core.AnalyzerITMS,
		ScanMode:         "ITMS + c NSI d Full ms2 500.25@cid35.00",
		Description:      `label, with "quotes"`,
		RetentionTime:    31.25,
		Mass:             []float64{150.5},
		Intensity:        []float64{42},
		Noise:            []float64{1},
		PrecursorScan:    10,
		ActivationCenter: 500.25,
		IsolationWidth:   2,
		IsolationOffset:  0.5,
		PrecursorMZ:      500.2,
		PrecursorCharge:  -2,
		IndexMZ:          96,
		IndexIntensity:   104,
		IndexNoise:       112,
	}
}

func TestWriteScanList(t *testing.T) {
	tests := []struct {
		name        string
		withOffsets bool
		want        string
	}{
		{
			name:        "with offsets",
			withOffsets: true,
			want: "ScanType,ScanID,ScanMode,ScanDescription,TotalIonCurrent,BasePeakIntensity,BasePeakMass," +
				"RetentionTime,IonInjectionTime,InstrumentType,PrecursorScan,ActivationCenter,IsolationWidth," +
				"IsolationOffset,PrecursorMZ,PrecursorCharge,RawOvFtT," +
				"_MassPosition,_MassLength,_IntensityPosition,_IntensityLength,_NoisePosition,_NoiseLength\n" +
				"MS1,10,FTMS + p NSI Full ms,,3000.0000,2000.0000,200.25000000,30.0000,12.5000,FTMS," +
				"0,0.0,0.0,0.0,0.0,0,1.50000000,64,16,80,16,96,0\n" +
				"MS2,11,ITMS + c NSI d Full ms2 500.25@cid35.00,\"label, with \"\"quotes\"\"\",0.0000,0.0000,0.00000000," +
				"31.2500,0.0000,ITMS,10,500.25000000,2.0000,0.5000,500.20000000,-2,0.00000000,96,8,104,8,112,8\n",
		},
		{
			name:        "without offsets",
			withOffsets: false,
			want: "ScanType,ScanID,ScanMode,ScanDescription,TotalIonCurrent,BasePeakIntensity,BasePeakMass," +
				"RetentionTime,IonInjectionTime,InstrumentType,PrecursorScan,ActivationCenter,IsolationWidth," +
				"IsolationOffset,PrecursorMZ,PrecursorCharge,RawOvFtT\n" +
				"MS1,10,FTMS + p NSI Full ms,,3000.0000,2000.0000,200.25000000,30.0000,12.5000,FTMS," +
				"0,0.0,0.0,0.0,0.0,0,1.50000000\n" +
				"MS2,11,ITMS + c NSI d Full ms2 500.25@cid35.00,\"label, with \"\"quotes\"\"\",0.0000,0.0000,0.00000000," +
				"31.2500,0.0000,ITMS,10,500.25000000,2.0000,0.5000,500.20000000,-2,0.00000000\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w := NewWriter(&buf, tt.withOffsets)
			if err := w.WriteHeader(); err != nil {
				t.Fatal(err)
			}
			for _, s := range []*core.Scan{primaryScan(), fragmentScan()} {
				if err := w.WriteScan(s); err != nil {
					t.Fatal(err)
				}
			}
			if err := w.Flush(); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, buf.String()); diff != "" {
				t.Errorf("output mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, true)
	w.WriteHeader()
	w.WriteScan(primaryScan())
	w.WriteScan(fragmentScan())
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	entries, withOffsets, err := Parse(&buf)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !withOffsets {
		t.Error("withOffsets = false, want true")
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	want := *fragmentScan()
	want.Mass, want.Intensity, want.Noise = nil, nil, nil
	if diff := cmp.Diff(want, entries[1].Scan); diff != "" {
		t.Errorf("fragment entry mismatch (-want +got):\n%s", diff)
	}
	if entries[1].Peaks() != 1 || !entries[1].HasNoise() {
		t.Errorf("fragment lengths = %+v", entries[1])
	}
	if entries[0].HasNoise() || entries[0].Peaks() != 2 {
		t.Errorf("primary lengths = %+v", entries[0])
	}
	if entries[0].Scan.Level != core.LevelPrimary || entries[0].Scan.PrecursorScan != 0 {
		t.Errorf("primary entry = %+v", entries[0].Scan)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"missing column", "ScanType,ScanID\nMS1,1\n"},
		{"bad number", strings.Join(Columns(false), ",") + "\nMS1,x,,,0,0,0,0,0,,0,0.0,0.0,0.0,0.0,0,0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := Parse(strings.NewReader(tt.input)); err == nil {
				t.Error("Parse() error = nil, want error")
			}
		})
	}
}
