// Package gquery is the read query model for the graph store.
//
// Queries are plain values built from triple patterns, a graph scope and a
// small set of filters. They are validated here, compiled to SQL by
// gquerysql and rendered as SPARQL text by Format for reports. Keeping the
// model separate from any backend is what lets the integrity validator
// state its query battery once and cross-check it against raw iteration.
package gquery
