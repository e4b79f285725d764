package tools

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
)

// RankTool orders a collection of items by semantic closeness to a query.
// Items embed once per call; ranking is cosine similarity against the query
// vector. Without an embedder it falls back to lexical term overlap so
// replayed functions still work offline.
type RankTool struct {
	Embedder embeddings.Embedder
}

func NewRankTool(embedder embeddings.Embedder) *RankTool {
	return &RankTool{Embedder: embedder}
}

func (r *RankTool) Name() string {
	return NameRank
}

func (r *RankTool) Description() string {
	return "Rank a list of items by semantic relevance to a query. Returns items ordered best-first with a score each."
}

func (r *RankTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "What the best items should be about",
			},
			"items": map[string]any{
				"type":        "array",
				"description": "The items to rank; strings or objects",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Return only the top N items (0 = all)",
			},
		},
		"required": []string{"query", "items"},
	}
}

func (r *RankTool) IsAvailable() bool {
	return true
}

type rankedItem struct {
	item  any
	text  string
	score float64
}

func (r *RankTool) Execute(ctx context.Context, params map[string]any, run *RunContext) (Result, error) {
	query := strParam(params, "query")
	if query == "" {
		return Fail("query is required"), nil
	}
	items := listParam(params, "items")
	if len(items) == 0 {
		return OK(map[string]any{"results": []any{}}), nil
	}

	ranked := make([]rankedItem, len(items))
	for i, it := range items {
		ranked[i] = rankedItem{item: it, text: textOf(it)}
	}

	if r.Embedder != nil {
		if err := r.scoreSemantic(ctx, query, ranked); err != nil {
			// Embedding endpoint trouble should not kill the chain;
			// degrade to the lexical path.
			scoreLexical(query, ranked)
		}
	} else {
		scoreLexical(query, ranked)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if limit := int(numParam(params, "limit", 0)); limit > 0 && limit < len(ranked) {
		ranked = ranked[:limit]
	}

	results := make([]any, len(ranked))
	for i, ri := range ranked {
		results[i] = map[string]any{
			"item":  ri.item,
			"score": ri.score,
		}
	}
	return OK(map[string]any{"results": results}), nil
}

func (r *RankTool) scoreSemantic(ctx context.Context, query string, ranked []rankedItem) error {
	texts := make([]string, len(ranked))
	for i, ri := range ranked {
		texts[i] = ri.text
	}

	qvec, err := r.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		return fmt.Errorf("embed query: %w", err)
	}
	vecs, err := r.Embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed items: %w", err)
	}
	if len(vecs) != len(ranked) {
		return fmt.Errorf("embedder returned %d vectors for %d items", len(vecs), len(ranked))
	}

	for i := range ranked {
		ranked[i].score = cosine(qvec, vecs[i])
	}
	return nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func scoreLexical(query string, ranked []rankedItem) {
	terms := strings.Fields(strings.ToLower(query))
	for i := range ranked {
		text := strings.ToLower(ranked[i].text)
		hits := 0
		for _, term := range terms {
			if strings.Contains(text, term) {
				hits++
			}
		}
		if len(terms) > 0 {
			ranked[i].score = float64(hits) / float64(len(terms))
		}
	}
}
