package mxf

// Limits bounds what the reader accepts from untrusted input. Zero fields
// take their defaults.
type Limits struct {
	MaxHeaderByteCount uint64 // used when the caller reads until EOF
	MaxSetLen          uint64 // BER length of a single set
	MaxPrimerEntries   uint32
	MaxSets            int
	MaxItemsPerSet     int
}

func defaultLimits() Limits {
	return Limits{
		MaxHeaderByteCount: 256 << 20, // 256 MiB
		MaxSetLen:          16 << 20,  // 16 MiB
		MaxPrimerEntries:   1 << 16,
		MaxSets:            1_000_000,
		MaxItemsPerSet:     1 << 14,
	}
}

func (l Limits) withDefaults() Limits {
	d := defaultLimits()
	if l.MaxHeaderByteCount == 0 {
		l.MaxHeaderByteCount = d.MaxHeaderByteCount
	}
	if l.MaxSetLen == 0 {
		l.MaxSetLen = d.MaxSetLen
	}
	if l.MaxPrimerEntries == 0 {
		l.MaxPrimerEntries = d.MaxPrimerEntries
	}
	if l.MaxSets == 0 {
		l.MaxSets = d.MaxSets
	}
	if l.MaxItemsPerSet == 0 {
		l.MaxItemsPerSet = d.MaxItemsPerSet
	}
	return l
}
