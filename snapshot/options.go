package snapshot

type readConfig struct {
	limits     Limits
	verifyHash bool
}

type ReadOption func(*readConfig)

func WithReadLimits(l Limits) ReadOption {
	return func(c *readConfig) { c.limits = l }
}

func WithVerifyHash(v bool) ReadOption {
	return func(c *readConfig) { c.verifyHash = v }
}

type writeConfig struct {
	limits       Limits
	verifyHash   bool
	autoPopulate bool
	compression  Compression
}

type WriteOption func(*writeConfig)

func WithWriteLimits(l Limits) WriteOption {
	return func(c *writeConfig) { c.limits = l }
}

// WithVerifyHashOnWrite controls whether a non-zero HeaderBundle.SHA256 is
// verified on Encode.
func WithVerifyHashOnWrite(v bool) WriteOption {
	return func(c *writeConfig) { c.verifyHash = v }
}

// WithAutoPopulateSHA256 causes Encode to compute the bundle hash when it is zero.
func WithAutoPopulateSHA256(v bool) WriteOption {
	return func(c *writeConfig) { c.autoPopulate = v }
}

func WithCompression(comp Compression) WriteOption {
	return func(c *writeConfig) { c.compression = comp }
}
