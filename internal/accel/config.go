package accel

import (
	"fmt"
	"log/slog"
)

// Accelerator method names.
const (
	MethodLinear = "linear"
	MethodDIIS   = "diis"
)

// Config selects and parameterises an accelerator. It is the serialisable
// form used by the CLI, the HTTP API and stored run records.
type Config struct {
	// Method is MethodLinear or MethodDIIS
	Method string `json:"method"`

	// Eta is the mixing fraction. Linear damping accepts [0,1], DIIS (0,1].
	Eta float64 `json:"eta"`

	// Depth is the DIIS subspace size. Ignored by linear damping.
	Depth int `json:"depth,omitempty"`

	// Restart is the DIIS growth factor that triggers a history reset.
	// Ignored by linear damping.
	Restart int `json:"restart,omitempty"`

	// FullSubspace fills the complete Gram block of the Pulay matrix.
	FullSubspace bool `json:"fullSubspace,omitempty"`
}

// DefaultConfig returns DIIS with eta 0.5, depth 3 and restart 10.
func DefaultConfig() Config {
	return Config{
		Method:  MethodDIIS,
		Eta:     0.5,
		Depth:   3,
		Restart: 10,
	}
}

// Validate checks the configuration without building an accelerator.
func (c Config) Validate() error {
	_, err := c.build(nil)
	return err
}

// New builds the accelerator described by cfg.
func New(cfg Config) (Accelerator, error) {
	return cfg.build(nil)
}

// NewWithLogger builds the accelerator described by cfg, routing DIIS
// messages to logger.
func NewWithLogger(cfg Config, logger *slog.Logger) (Accelerator, error) {
	return cfg.build(logger)
}

func (c Config) build(logger *slog.Logger) (Accelerator, error) {
	switch c.Method {
	case MethodLinear:
		l, err := NewLinearDamping(c.Eta)
		if err != nil {
			return nil, err
		}
		return l, nil
	case MethodDIIS:
		var opts []DIISOption
		if c.FullSubspace {
			opts = append(opts, WithFullSubspace())
		}
		if logger != nil {
			opts = append(opts, WithLogger(logger))
		}
		d, err := NewDIIS(c.Eta, c.Depth, c.Restart, opts...)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, &ConfigError{Field: "method", Reason: fmt.Sprintf("unknown method %q", c.Method)}
	}
}
