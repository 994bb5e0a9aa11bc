package core

// Linker fills in missing precursor references while scans are visited in
// ascending id order.
//
// Files without an explicit master scan trailer are assumed to fragment the
// most recently acquired primary scan. Interleaved precursor streams are not
// distinguished.
type Linker struct {
	explicit    bool
	lastPrimary int
}

// NewLinker creates a linker. When explicit is true the reader provides the
// master scan for every fragment scan and Link leaves PrecursorScan alone.
func NewLinker(explicit bool) *Linker {
	return &Linker{explicit: explicit}
}

// Link records primary scans and patches fragment scans. A fragment scan seen
// before any primary scan gets PrecursorScan 0.
func (l *Linker) Link(s *Scan) {
	switch s.Level {
	case LevelPrimary:
		l.lastPrimary = s.ID
	case LevelFragment:
		if !l.explicit {
			s.PrecursorScan = l.lastPrimary
		}
	}
}

// LastPrimary returns the id of the most recent primary scan, or 0.
func (l *Linker) LastPrimary() int {
	return l.lastPrimary
}
