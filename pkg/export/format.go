package export

import (
	"errors"
	"fmt"
	"strings"
)

// Format selects the peak artifact written next to the .txt and .csv files.
type Format int

const (
	FormatUMZ Format = iota // indexed binary container
	FormatMSX               // .ms1/.ms2 text pair
	FormatMES               // legacy two-block peak store
	FormatDB                // SQLite scan library
)

// ErrUnsupportedFormat is returned for unknown format tokens.
var ErrUnsupportedFormat = errors.New("unsupported output format")

var formatNames = map[Format]string{
	FormatUMZ: "umz",
	FormatMSX: "msx",
	FormatMES: "mes",
	FormatDB:  "db",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// Extensions returns the file extensions written for the format.
func (f Format) Extensions() []string {
	switch f {
	case FormatUMZ:
		return []string{".umz"}
	case FormatMSX:
		return []string{".ms1", ".ms2"}
	case FormatMES:
		return []string{".mes"}
	case FormatDB:
		return []string{".db"}
	}
	return nil
}

// Formats returns the accepted format tokens.
func Formats() []string {
	return []string{"umz", "msx", "mes", "db"}
}

// ParseFormat maps a format token to a Format. Tokens are case-insensitive.
func ParseFormat(token string) (Format, error) {
	t := strings.ToLower(strings.TrimSpace(token))
	for f, name := range formatNames {
		if name == t {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, token)
}
