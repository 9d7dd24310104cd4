package rag

import "errors"

// ErrGeneration indicates the language model failed to produce an answer.
// Unlike retrieval failures there is no degraded mode to fall back to, so
// the turn fails and nothing is recorded.
var ErrGeneration = errors.New("generation failed")
