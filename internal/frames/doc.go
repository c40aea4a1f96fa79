// Package frames samples still images from a video at a fixed interval.
//
// A Frame pairs its position in the sampled sequence with its timestamp
// (Index * interval seconds) and the image itself. The FFmpegSampler writes
// JPEGs with ffmpeg's fps filter into a frames directory and reuses that
// directory on later runs when its manifest matches the source and interval.
// Images are decoded lazily through Frame.Load so long videos do not have to
// fit in memory at once.
package frames
