// Package ffprobe inspects source media before sampling.
//
// Prober.Inspect runs ffprobe with JSON output and decodes streams and
// container format. Result helpers pick the video stream, parse rational
// frame rates, and estimate how many samples a given interval yields.
package ffprobe
