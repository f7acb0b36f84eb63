// Package tracking is the boundary to the device tracking engine.
//
// The engine is a black box that produces pose updates, relocalization
// events and depth frames, and owns the learned maps. Engine is the
// interface the placement session drives; SimEngine is a deterministic
// in-process implementation used by tests, replay scripts and the CLI.
// Map metadata lives in a Registry.
package tracking
