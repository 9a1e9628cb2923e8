package stability

import (
	"errors"
	"fmt"
)

var (
	ErrConfigMissing = errors.New("config document missing")
	ErrConfigCorrupt = errors.New("config document corrupt")
	ErrCreateDir     = errors.New("create directory")
	ErrNoSelfSampler = errors.New("self sampler is not configured")
)

// ConfigErrorKind classifies a ConfigError.
type ConfigErrorKind string

const (
	ConfigMissing ConfigErrorKind = "missing"
	ConfigCorrupt ConfigErrorKind = "corrupt"
)

// ConfigError describes a declared document that failed the integrity check.
type ConfigError struct {
	Kind     ConfigErrorKind
	Document string
	Err      error
}

func (e *ConfigError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("config %s: %s", e.Document, e.Kind)
	}

	return fmt.Sprintf("config %s: %s: %v", e.Document, e.Kind, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func (e *ConfigError) Is(target error) bool {
	switch e.Kind {
	case ConfigMissing:
		return target == ErrConfigMissing
	case ConfigCorrupt:
		return target == ErrConfigCorrupt
	default:
		return false
	}
}
