package snapshot

type Limits struct {
	MaxMetadataLen   uint32
	MaxSectionLen    uint64 // compressed payload length as stored in file
	MaxUncompressed  uint64 // gob bytes after decompression
	MaxHeaderDataLen uint64
	MaxSchemas       int
}

func defaultLimits() Limits {
	return Limits{
		MaxMetadataLen:   1 << 20,   // 1 MiB
		MaxSectionLen:    512 << 20, // 512 MiB stored payload cap
		MaxUncompressed:  512 << 20,
		MaxHeaderDataLen: 256 << 20,
		MaxSchemas:       256,
	}
}

func (l Limits) withDefaults() Limits {
	d := defaultLimits()
	if l.MaxMetadataLen == 0 {
		l.MaxMetadataLen = d.MaxMetadataLen
	}
	if l.MaxSectionLen == 0 {
		l.MaxSectionLen = d.MaxSectionLen
	}
	if l.MaxUncompressed == 0 {
		l.MaxUncompressed = d.MaxUncompressed
	}
	if l.MaxHeaderDataLen == 0 {
		l.MaxHeaderDataLen = d.MaxHeaderDataLen
	}
	if l.MaxSchemas == 0 {
		l.MaxSchemas = d.MaxSchemas
	}
	return l
}
