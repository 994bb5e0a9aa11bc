// Package mzml provides a reader.Source backed by an mzML document.
//
// Thermo trailer values are not part of the mzML vocabulary. The source
// synthesizes the trailer labels the exporter understands from the matching
// cvParams and passes scan userParams through as additional trailer fields.
package mzml

import "encoding/xml"

// CV accessions used by the source.
const (
	cvMSLevel            = "MS:1000511"
	cvCentroidSpectrum   = "MS:1000127"
	cvProfileSpectrum    = "MS:1000128"
	cvNegativeScan       = "MS:1000129"
	cvTotalIonCurrent    = "MS:1000285"
	cvBasePeakMZ         = "MS:1000504"
	cvBasePeakIntensity  = "MS:1000505"
	cvFilterString       = "MS:1000512"
	cvScanStartTime      = "MS:1000016"
	cvInjectionTime      = "MS:1000927"
	cvIsolationTarget    = "MS:1000827"
	cvIsolationLower     = "MS:1000828"
	cvIsolationUpper     = "MS:1000829"
	cvSelectedIonMZ      = "MS:1000744"
	cvChargeState        = "MS:1000041"
	cvSerialNumber       = "MS:1000529"
	cvThermoNativeID     = "MS:1000768"
	cvThermoRawFormat    = "MS:1000563"
	cvZlibCompression    = "MS:1000574"
	cv64BitFloat         = "MS:1000523"
	cv32BitFloat         = "MS:1000521"
	cvMZArray            = "MS:1000514"
	cvIntensityArray     = "MS:1000515"
	cvNonStandardArray   = "MS:1000786"
	unitMinute           = "UO:0000031"
	unitSecond           = "UO:0000010"
	thermoTrailerPrefix  = "[Thermo Trailer Extra]"
	thermoVendor         = "Thermo"
	scanNumberIDPrefix   = "scan="
	noiseArrayName       = "noise"
	defaultInstrumentTag = "unknown"
)

// Analyzer accessions mapped to the exporter's analyzer tags.
var (
	ftmsAnalyzers = map[string]bool{
		"MS:1000484": true, // orbitrap
		"MS:1000079": true, // fourier transform ion cyclotron resonance
	}
	itmsAnalyzers = map[string]bool{
		"MS:1000264": true, // ion trap
		"MS:1000082": true, // quadrupole ion trap
		"MS:1000083": true, // radial ejection linear ion trap
		"MS:1000078": true, // axial ejection linear ion trap
		"MS:1000291": true, // linear ion trap
	}
)

// Numpress encodings are not supported.
var numpressAccessions = map[string]bool{
	"MS:1002312": true, "MS:1002313": true, "MS:1002314": true,
	"MS:1002746": true, "MS:1002747": true, "MS:1002748": true,
}

type document struct {
	XMLName                     xml.Name                    `xml:"mzML"`
	FileDescription             fileDescription             `xml:"fileDescription"`
	ReferenceableParamGroupList referenceableParamGroupList `xml:"referenceableParamGroupList"`
	InstrumentConfigurationList instrumentConfigurationList `xml:"instrumentConfigurationList"`
	Run                         run                         `xml:"run"`
}

type fileDescription struct {
	SourceFiles []sourceFile `xml:"sourceFileList>sourceFile"`
}

type sourceFile struct {
	CvPar []cvParam `xml:"cvParam"`
}

type referenceableParamGroupList struct {
	Groups []paramGroup `xml:"referenceableParamGroup"`
}

type paramGroup struct {
	ID    string    `xml:"id,attr"`
	CvPar []cvParam `xml:"cvParam"`
}

type paramGroupRef struct {
	Ref string `xml:"ref,attr"`
}

type instrumentConfigurationList struct {
	Configs []instrumentConfiguration `xml:"instrumentConfiguration"`
}

type instrumentConfiguration struct {
	ID        string          `xml:"id,attr"`
	GroupRefs []paramGroupRef `xml:"referenceableParamGroupRef"`
	CvPar     []cvParam       `xml:"cvParam"`
	Analyzers []component     `xml:"componentList>analyzer"`
}

type component struct {
	CvPar []cvParam `xml:"cvParam"`
}

type run struct {
	ID                                string       `xml:"id,attr"`
	DefaultInstrumentConfigurationRef string       `xml:"defaultInstrumentConfigurationRef,attr"`
	SpectrumList                      spectrumList `xml:"spectrumList"`
}

type spectrumList struct {
	Count    int        `xml:"count,attr"`
	Spectrum []spectrum `xml:"spectrum"`
}

type spectrum struct {
	Index               int                 `xml:"index,attr"`
	ID                  string              `xml:"id,attr"`
	DefaultArrayLength  int                 `xml:"defaultArrayLength,attr"`
	CvPar               []cvParam           `xml:"cvParam"`
	UserPar             []userParam         `xml:"userParam"`
	ScanList            scanList            `xml:"scanList"`
	PrecursorList       precursorList       `xml:"precursorList"`
	BinaryDataArrayList binaryDataArrayList `xml:"binaryDataArrayList"`
}

type scanList struct {
	Scans []scan `xml:"scan"`
}

type scan struct {
	InstrumentConfigurationRef string      `xml:"instrumentConfigurationRef,attr"`
	CvPar                      []cvParam   `xml:"cvParam"`
	UserPar                    []userParam `xml:"userParam"`
}

type precursorList struct {
	Precursors []precursor `xml:"precursor"`
}

type precursor struct {
	SpectrumRef     string      `xml:"spectrumRef,attr"`
	IsolationWindow component   `xml:"isolationWindow"`
	SelectedIons    []component `xml:"selectedIonList>selectedIon"`
	Activation      component   `xml:"activation"`
}

type binaryDataArrayList struct {
	Arrays []binaryDataArray `xml:"binaryDataArray"`
}

type binaryDataArray struct {
	EncodedLength int       `xml:"encodedLength,attr"`
	ArrayLength   int       `xml:"arrayLength,attr"`
	CvPar         []cvParam `xml:"cvParam"`
	Binary        string    `xml:"binary"`
}

// cvParam contains values and attributes of a controlled vocabulary term
type cvParam struct {
	Accession     string `xml:"accession,attr"`
	Name          string `xml:"name,attr"`
	Value         string `xml:"value,attr"`
	UnitAccession string `xml:"unitAccession,attr"`
}

type userParam struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

func findCV(params []cvParam, accession string) (cvParam, bool) {
	for _, p := range params {
		if p.Accession == accession {
			return p, true
		}
	}
	return cvParam{}, false
}

func hasCV(params []cvParam, accession string) bool {
	_, ok := findCV(params, accession)
	return ok
}
