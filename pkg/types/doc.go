// Package types holds the data model shared by the apply engine: profiles,
// mapping entries, per-target link state, secret and script state, and
// the options and report exchanged with the invoking layer.
package types
