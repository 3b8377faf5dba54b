// Package llm generates answers from retrieved document context.
package llm

import "context"

// Generator produces an answer for a question given retrieved context chunks.
type Generator interface {
	Generate(ctx context.Context, question string, contexts []string) (string, error)
	Close() error
}
