package tether

import "log/slog"

const (
	// DefaultVerifyTypes is the default for Config.VerifyTypes.
	DefaultVerifyTypes = true
	// DefaultLossyFloat is the default for Config.LossyFloat.
	DefaultLossyFloat = false
)

// Config holds the settings of a Binder.
type Config struct {
	// Logger receives debug records for definitions and translated errors.
	Logger *slog.Logger
	// VerifyTypes checks at definition time that every parameter and
	// result type of a bound function can be converted.
	VerifyTypes bool
	// LossyFloat lets host Floats with a fractional part convert to Go
	// integers by truncation.
	LossyFloat bool
}

// DefaultConfig is the configuration used when no options are given.
func DefaultConfig() Config {
	return Config{
		Logger:      slog.New(slog.DiscardHandler),
		VerifyTypes: DefaultVerifyTypes,
		LossyFloat:  DefaultLossyFloat,
	}
}

// NewConfig applies opts to the default configuration.
func NewConfig(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return cfg
}

// Option mutates a Config during construction.
type Option func(*Config)

// WithLogger sets the logger. A nil logger discards.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithVerifyTypes sets the VerifyTypes option.
func WithVerifyTypes(verify bool) Option {
	return func(c *Config) {
		c.VerifyTypes = verify
	}
}

// WithLossyFloat sets the LossyFloat option.
func WithLossyFloat(lossy bool) Option {
	return func(c *Config) {
		c.LossyFloat = lossy
	}
}
