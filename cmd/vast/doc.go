// Package main hosts the vast CLI entrypoint and command graph.
//
// Commands run the scene pipeline over a video (run, detect, export), align
// a transcript against an existing segment list (align), inspect run history
// (runs list, runs show, runs remove), report tool readiness (status), and
// scaffold configuration (config init, config validate). Pipeline logic lives
// in internal/pipeline; this package only wires configuration, logging, the
// run store, and output rendering.
package main
