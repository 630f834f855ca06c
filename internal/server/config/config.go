// Package config contains the tunables read by the docop core at
// dispatch time, bound to command-line flags and read back through
// viper. Environment variables are not bound.
package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultPrefetchLimit               = 1024
	DefaultBackwardPrefetchScaleFactor = 0.5
	DefaultRequestLimit                = 1024
)

// Tunables are the knobs read at dispatch time: the per-request row
// cap, the reverse-scan scaling factor, and the ceiling on concurrent
// live sub-requests per read op.
type Tunables struct {
	PrefetchLimit               uint64
	BackwardPrefetchScaleFactor float64
	RequestLimit                int
}

// NewDefaultTunables returns the tunables a fresh op should use absent
// any operator override.
func NewDefaultTunables() Tunables {
	return Tunables{
		PrefetchLimit:               DefaultPrefetchLimit,
		BackwardPrefetchScaleFactor: DefaultBackwardPrefetchScaleFactor,
		RequestLimit:                DefaultRequestLimit,
	}
}

// Validate checks the invariants the prefetch-sizing formula depends
// on: a positive prefetch limit, a scale factor in (0, 1], and a
// positive request limit.
func (t Tunables) Validate() error {
	if t.PrefetchLimit == 0 {
		return fmt.Errorf("prefetch_limit must be positive, got %d", t.PrefetchLimit)
	}
	if t.BackwardPrefetchScaleFactor <= 0 || t.BackwardPrefetchScaleFactor > 1 {
		return fmt.Errorf("backward_prefetch_scale_factor must be in (0, 1], got %f", t.BackwardPrefetchScaleFactor)
	}
	if t.RequestLimit <= 0 {
		return fmt.Errorf("request_limit must be positive, got %d", t.RequestLimit)
	}
	return nil
}

// BindFlags registers the tunables on fs so a cobra command can expose
// them as --prefetch-limit, --backward-prefetch-scale-factor and
// --request-limit, following the usual flag-then-viper-bind pattern.
func BindFlags(fs *pflag.FlagSet) {
	fs.Uint64("prefetch-limit", DefaultPrefetchLimit, "default per-request row cap for read sub-requests")
	fs.Float64("backward-prefetch-scale-factor", DefaultBackwardPrefetchScaleFactor, "multiplicative reduction applied to the prefetch limit for reverse scans")
	fs.Int("request-limit", DefaultRequestLimit, "ceiling on concurrent live sub-requests per read op")
}

// TunablesFromViper reads the tunables bound by BindFlags out of v.
func TunablesFromViper(v *viper.Viper) Tunables {
	return Tunables{
		PrefetchLimit:               v.GetUint64("prefetch-limit"),
		BackwardPrefetchScaleFactor: v.GetFloat64("backward-prefetch-scale-factor"),
		RequestLimit:                v.GetInt("request-limit"),
	}
}
