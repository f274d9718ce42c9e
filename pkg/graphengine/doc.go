// Package graphengine is the embeddable facade in front of the knowledge
// graph store, its search and traversal algorithms, and the agent-memory
// overlay. A host process calls Open with a *config.Config, gets back a
// *Facade, and drives every other package in this module exclusively
// through its methods — nothing else in this module is meant to be wired
// up by hand.
//
// Open builds every component eagerly, in the order spec.md §4.P names:
// store, indexes, text algorithms, the basic/ranked/BM25/boolean/fuzzy
// searchers, traversal, the access tracker, the decay engine, the
// salience engine, working memory, the context-window manager, and
// finally the decay scheduler. A host that embeds this engine pays that
// cost once, at startup, rather than on first use of each component. Only
// the store (Store) and the telemetry recorder (Telemetry) have their own
// accessors; every other component is reached through the facade's
// methods.
package graphengine
