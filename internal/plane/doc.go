// Package plane turns a 2D touch point plus a depth frame into a 3D
// placement pose.
//
// Find selects the depth points that project near the touch, fits a
// plane to them with RANSAC followed by a least-squares refit, and
// intersects the touch ray with that plane. The returned orientation
// stands the object on the surface and turns it to face the viewer
// (FacingForward).
package plane
