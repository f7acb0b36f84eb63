// Package anchor holds the placed-produce data model and the pose
// encoding that keeps it stable across tracking sessions.
//
// A device pose D and an object pose P are both expressed in the map
// frame. Encode stores P relative to D so the object can be re-derived
// from a corrected D after loop closure; the absolute pose is what gets
// persisted, as a Record.
package anchor
