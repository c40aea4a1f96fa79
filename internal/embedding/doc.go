// Package embedding turns frames into image embeddings with a CLIP vision
// model executed by ONNX Runtime.
//
// Runtime owns the process-wide ONNX Runtime environment and is created once
// by the caller. CLIPEncoder is an explicit service built on a Runtime: inject
// it into the embedding comparison strategy and Close it when the run
// finishes. Closing an encoder never tears down the environment. Encoders are
// safe for concurrent use; inference calls are serialized on the session.
package embedding
