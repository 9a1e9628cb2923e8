package delivery

import (
	"math"
	"time"
)

// Policy computes the wait before retry n as min(Base * Multiplier^n, Cap).
type Policy struct {
	Base       time.Duration `yaml:"base" validate:"gt=0"`
	Multiplier float64       `yaml:"multiplier" validate:"gte=1"`
	Cap        time.Duration `yaml:"cap" validate:"gtefield=Base"`
}

// DefaultPolicy doubles from one second up to a minute.
func DefaultPolicy() Policy {
	return Policy{
		Base:       time.Second,
		Multiplier: 2,
		Cap:        time.Minute,
	}
}

// FastPolicy is for tests and interactive tools: half a second doubling up to two seconds.
func FastPolicy() Policy {
	return Policy{
		Base:       500 * time.Millisecond,
		Multiplier: 2,
		Cap:        2 * time.Second,
	}
}

// Delay returns the wait before retry number retry (1-based).
func (p Policy) Delay(retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}

	d := float64(p.Base) * math.Pow(p.Multiplier, float64(retry))
	if d >= float64(p.Cap) || math.IsInf(d, 0) || math.IsNaN(d) {
		return p.Cap
	}

	return time.Duration(d)
}
