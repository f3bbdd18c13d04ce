package mxf

import "go.uber.org/zap"

type modelConfig struct {
	logger *zap.Logger
}

type ModelOption func(*modelConfig)

// WithLogger sets the logger used for Check diagnostics and by documents
// built against the model. A nil logger is ignored.
func WithLogger(l *zap.Logger) ModelOption {
	return func(c *modelConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

type readConfig struct {
	limits     Limits
	logger     *zap.Logger
	strictRefs bool
}

type ReadOption func(*readConfig)

func WithReadLimits(l Limits) ReadOption {
	return func(c *readConfig) { c.limits = l }
}

// WithReadLogger overrides the data model's logger for one read.
func WithReadLogger(l *zap.Logger) ReadOption {
	return func(c *readConfig) { c.logger = l }
}

// WithStrictReferences makes ReadHeaderMetadata fail with
// ErrDanglingReference when a strong reference names a set that is not in
// the stream. Dangling weak references are never an error.
func WithStrictReferences(v bool) ReadOption {
	return func(c *readConfig) { c.strictRefs = v }
}

type writeConfig struct {
	llen   int
	logger *zap.Logger
}

type WriteOption func(*writeConfig)

// WithLLen sets the number of bytes used for each set's BER length,
// including the leading 0x8n byte. Valid values are 2 through 9; the
// default is 4.
func WithLLen(n int) WriteOption {
	return func(c *writeConfig) { c.llen = n }
}

func WithWriteLogger(l *zap.Logger) WriteOption {
	return func(c *writeConfig) { c.logger = l }
}
