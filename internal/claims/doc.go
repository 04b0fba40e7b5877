// Package claims provides the business boundary for claimdesk's triage
// pipeline. It defines the Service (workflow orchestration), Retriever
// (vector similarity over stored notes), Store interface (persistence and
// guarded query execution), and domain models.
package claims
