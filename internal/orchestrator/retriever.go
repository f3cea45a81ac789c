package orchestrator

import (
	"context"

	"github.com/lokutor-ai/vaak-pipeline/internal/bus"
)

// RetrieveOptions narrows a retrieval call (top-k, filters); kept as an
// open map since the index implementation is explicitly out of scope
// (spec §1: "the RAG index itself (only the Retriever contract is used)").
type RetrieveOptions struct {
	TopK    int
	Filters map[string]string
}

// Retriever is the abstract collaborator of spec §6: ranked document
// retrieval, optional agentic iterative refinement, and a prefetch hook
// fired on VAD speech-start to warm caches while the user is still
// talking. Process-wide and shared across sessions (spec §5).
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts RetrieveOptions) ([]bus.Document, error)
	RetrieveAgentic(ctx context.Context, query string, context_ []bus.Document, maxIter int) ([]bus.Document, error)
	Prefetch(partialTranscript string)
}

// NoopRetriever is used when a session has no retrieval-augmented stage
// configured; every call is a harmless no-op.
type NoopRetriever struct{}

func (NoopRetriever) Retrieve(ctx context.Context, query string, opts RetrieveOptions) ([]bus.Document, error) {
	return nil, nil
}

func (NoopRetriever) RetrieveAgentic(ctx context.Context, query string, context_ []bus.Document, maxIter int) ([]bus.Document, error) {
	return nil, nil
}

func (NoopRetriever) Prefetch(partialTranscript string) {}
