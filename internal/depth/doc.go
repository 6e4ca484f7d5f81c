// Package depth turns raw depth-camera frames into target observations.
//
// A frame passes through three stages: the masker thresholds every sample
// against a depth band, the blob extractor traces the external contours of
// the resulting mask and reduces each one to a centroid and area, and the
// pipeline publishes the first blob inside the configured area window to
// the target tracker shared with the control loop.
package depth
