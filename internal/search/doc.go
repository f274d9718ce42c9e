// Package search implements the engine's multi-modal search components
// (spec.md §4.E–§4.I): substring, TF-IDF ranked, BM25 with an inverted
// index, boolean query evaluation, fuzzy (edit-distance) matching, and a
// hybrid fusion of all of them. Every searcher reads from a graph.Store's
// cache and indexes; none of them own persistence.
package search
