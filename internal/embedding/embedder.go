// Package embedding turns items into raw feature vectors via an external model.
package embedding

import "context"

// Embedder produces a feature vector for the item identified by key (an image path for
// the ONNX embedder). Returned vectors are not normalized; the ingestion pipeline does that.
type Embedder interface {
	Embed(ctx context.Context, key string) ([]float32, error)
	Dimensions() int
	Close() error
}
