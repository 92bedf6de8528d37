package model

import "errors"

var (
	// ErrDimensionMismatch is returned when an embedding does not match the
	// configured vector dimension. It is fatal to the operation that
	// produced the embedding.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidEmbedding is returned when a query embedding contains
	// non-finite values or has the wrong length.
	ErrInvalidEmbedding = errors.New("invalid embedding")

	// ErrEngineClosed is returned when an engine is used after Close.
	ErrEngineClosed = errors.New("engine is closed")
)
