package claims

import (
	"context"

	"github.com/linnemanlabs/claimdesk/internal/llm"
)

// Retriever finds stored claim notes similar to a query text: it embeds
// the query through the completion client, then asks the store for the k
// nearest notes by vector distance.
//
// The distance metric and vector dimensionality must match whatever
// populated the stored embeddings; the retriever does not re-validate
// this. A mismatch yields a query error or meaningless ordering.
type Retriever struct {
	client llm.Client
	store  Store
}

// NewRetriever creates a retriever over the given client and store.
func NewRetriever(client llm.Client, store Store) *Retriever {
	return &Retriever{client: client, store: store}
}

// Retrieve returns up to k notes ordered by ascending distance. For
// k <= 0 it returns an empty slice without calling the provider or the
// store.
func (r *Retriever) Retrieve(ctx context.Context, text string, k int) ([]ClaimNote, error) {
	if k <= 0 {
		return []ClaimNote{}, nil
	}

	vecs, err := r.client.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return r.store.NearestNotes(ctx, vecs[0], k)
}
