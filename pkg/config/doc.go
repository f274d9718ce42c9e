// Package config holds the tunable knobs the engine's components take
// from the embedding host: store backend selection, decay/salience
// weights, search thresholds, and scheduler intervals.
//
// Unlike the teacher this engine is grounded on, there is no YAML/env
// loader here — config/environment loading is explicitly out of scope
// for this engine (spec.md §1); a host process builds a Config value in
// Go and passes it to the facade directly.
package config
