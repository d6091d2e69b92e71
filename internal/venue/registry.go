package venue

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nullmev/arbengine/internal/arberr"
	"github.com/nullmev/arbengine/internal/domain"
)

// VenueConfig is one configured venue entry (spec §6's venues[*] keys).
type VenueConfig struct {
	ID       domain.VenueID
	Enabled  bool
	Family   Family
	Router   common.Address
	Factory  common.Address
	Quoter   common.Address // required for V3-family only
	Fees     []uint32       // allowed tiers; scalar fee is a single-element slice
}

// Registry enumerates enabled venues, validates configuration, and owns
// adapter instances (spec §4.2). It is read-only after NewRegistry (spec §5:
// "the Venue Registry is read-only after startup").
type Registry struct {
	adapters map[domain.VenueID]Adapter
	configs  map[domain.VenueID]VenueConfig
	order    []domain.VenueID
}

// Validate checks a single VenueConfig against spec §4.2's rules: router and
// factory addresses are required, quoter is required for V3-family, fee
// values must lie in [0, 10_000], and every address must pass a length+hex
// check (common.Address already enforces 20 bytes; this rejects the zero
// address for required fields).
func (c VenueConfig) Validate() error {
	if c.Router == (common.Address{}) {
		return &arberr.ConfigError{Field: "router", Err: fmt.Errorf("venue %q: router required", c.ID)}
	}
	if c.Factory == (common.Address{}) {
		return &arberr.ConfigError{Field: "factory", Err: fmt.Errorf("venue %q: factory required", c.ID)}
	}
	if c.Family == FamilyV3 && c.Quoter == (common.Address{}) {
		return &arberr.ConfigError{Field: "quoter", Err: fmt.Errorf("venue %q: quoter required for V3-family", c.ID)}
	}
	for _, fee := range c.Fees {
		if fee > 10_000 {
			return &arberr.ConfigError{Field: "fees", Err: fmt.Errorf("venue %q: fee %d exceeds 10_000", c.ID, fee)}
		}
	}
	return nil
}

// AdapterFactory constructs the Adapter for one venue, given its config.
type AdapterFactory func(cfg VenueConfig) (Adapter, error)

// NewRegistry validates every enabled config and builds its adapter via
// factory, keyed by family.
func NewRegistry(configs []VenueConfig, factory AdapterFactory) (*Registry, error) {
	r := &Registry{
		adapters: make(map[domain.VenueID]Adapter),
		configs:  make(map[domain.VenueID]VenueConfig),
	}
	seen := make(map[domain.VenueID]bool)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		if seen[cfg.ID] {
			return nil, &arberr.ConfigError{Field: "venues", Err: fmt.Errorf("duplicate venue id %q", cfg.ID)}
		}
		seen[cfg.ID] = true

		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		adapter, err := factory(cfg)
		if err != nil {
			return nil, &arberr.ConfigError{Field: "venues", Err: fmt.Errorf("venue %q: %w", cfg.ID, err)}
		}
		r.adapters[cfg.ID] = adapter
		r.configs[cfg.ID] = cfg
		r.order = append(r.order, cfg.ID)
	}
	return r, nil
}

// Lookup returns the adapter registered for id, or false if unknown/disabled.
func (r *Registry) Lookup(id domain.VenueID) (Adapter, bool) {
	a, ok := r.adapters[id]
	return a, ok
}

// Config returns the validated configuration for id.
func (r *Registry) Config(id domain.VenueID) (VenueConfig, bool) {
	c, ok := r.configs[id]
	return c, ok
}

// EnabledVenues returns every enabled venue id, in registration order.
func (r *Registry) EnabledVenues() []domain.VenueID {
	out := make([]domain.VenueID, len(r.order))
	copy(out, r.order)
	return out
}
