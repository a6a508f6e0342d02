package logoann

// Options contains service configuration.
type Options struct {
	// Logger for service events. Defaults to a text logger on stderr.
	Logger *Logger

	// DefaultIndex is the index used when a request names none.
	// Defaults to the first configured index.
	DefaultIndex string

	// RandSeed seeds the source used by RandomID. Zero means seed from
	// the current time.
	RandSeed int64
}

// DefaultOptions is the default service configuration.
var DefaultOptions = Options{}
