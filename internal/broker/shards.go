package broker

import (
	"log/slog"

	"github.com/jonboulle/clockwork"
)

// Registry maps region keys to their shard broker. Shards are fully
// independent: no state or message ever crosses shard boundaries.
type Registry struct {
	shards       map[string]*Broker
	defaultShard *Broker
}

// NewRegistry creates one broker per region plus the default shard used
// for missing or unrecognized region keys.
func NewRegistry(regions []string, defaultRegion string, overflowThreshold int, clock clockwork.Clock) *Registry {
	r := &Registry{shards: make(map[string]*Broker)}

	r.defaultShard = New(defaultRegion, overflowThreshold, clock)
	r.shards[defaultRegion] = r.defaultShard

	for _, region := range regions {
		if _, exists := r.shards[region]; exists {
			continue
		}
		r.shards[region] = New(region, overflowThreshold, clock)
	}

	slog.Info("Shard registry created", "shards", len(r.shards), "default", defaultRegion)
	return r
}

// Get returns the broker for the given region key, falling back to the
// default shard when the key is empty or unknown.
func (r *Registry) Get(region string) *Broker {
	if b, ok := r.shards[region]; ok {
		return b
	}
	return r.defaultShard
}

// All returns every shard broker, for stats and shutdown.
func (r *Registry) All() []*Broker {
	out := make([]*Broker, 0, len(r.shards))
	for _, b := range r.shards {
		out = append(out, b)
	}
	return out
}

// Stop shuts every shard down.
func (r *Registry) Stop() {
	for _, b := range r.shards {
		b.Stop()
	}
}
