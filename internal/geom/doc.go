// Package geom owns the coordinate-frame math shared by the placement
// pipeline.
//
// Responsibilities: vectors and quaternions (thin wrappers over gonum
// spatial/r3 and num/quat), rigid 4x4 transforms, the pinhole camera
// model used to project between screen and world, and axis-aligned
// bounds.
//
// Conventions: world and camera frames are right-handed. Camera frames
// follow the OpenCV layout (X right, Y down, Z forward) and screen
// coordinates are pixels with the origin at the top-left corner.
// Transforms are [16]float64 row-major, matching ApplyPose in the
// sensor code this package grew out of.
package geom
