package lineage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/models"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/internal/warehouse"
)

// EdgeStore is the persistence surface the engine needs.
type EdgeStore interface {
	Upsert(ctx context.Context, edge *models.LineageEdge) error
	ListFresh(ctx context.Context, seenSince time.Time) ([]models.LineageEdge, error)
}

// Options tune traversal and staleness behavior.
type Options struct {
	StaleAfter    time.Duration
	MinConfidence float64
	MaxDepth      int
}

// Engine ingests captured SQL into lineage edges and serves DAG queries over
// the non-stale subgraph.
type Engine struct {
	store EdgeStore
	log   zerolog.Logger
	opts  Options
}

// NewEngine creates a lineage engine.
func NewEngine(store EdgeStore, opts Options, log zerolog.Logger) *Engine {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 30 * 24 * time.Hour
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 10
	}
	return &Engine{store: store, opts: opts, log: log.With().Str("component", "lineage").Logger()}
}

// Ingest parses each captured query and upserts the resulting edges.
// Unparseable queries are skipped silently. Returns the edge count written.
func (e *Engine) Ingest(ctx context.Context, entries []warehouse.QueryLogEntry) (int, error) {
	written := 0
	for _, entry := range entries {
		parsed := ParseQuery(entry.SQL)
		if parsed == nil || len(parsed.Sources) == 0 {
			e.log.Debug().Str("sql", truncate(entry.SQL, 120)).Msg("skipping query without lineage")
			continue
		}

		relationship := models.RelationshipDirect
		if parsed.Aggregated {
			relationship = models.RelationshipAggregated
		} else if parsed.Derived {
			relationship = models.RelationshipDerived
		}

		observedAt := entry.ExecutedAt
		if observedAt.IsZero() {
			observedAt = time.Now().UTC()
		}
		hash := QueryHash(entry.SQL)

		for source, confidence := range parsed.Sources {
			edge := &models.LineageEdge{
				Source:       source,
				Target:       parsed.Target,
				Relationship: relationship,
				Confidence:   confidence,
				QueryHash:    hash,
				FirstSeenAt:  observedAt,
				LastSeenAt:   observedAt,
			}
			if err := e.store.Upsert(ctx, edge); err != nil {
				return written, fmt.Errorf("failed to ingest edge %s->%s: %w", source, parsed.Target, err)
			}
			written++
		}
	}
	return written, nil
}

// Upstream returns tables feeding into the given table, bounded by depth.
func (e *Engine) Upstream(ctx context.Context, table string, depth int) ([]models.LineageNode, error) {
	adj, err := e.adjacency(ctx, true)
	if err != nil {
		return nil, err
	}
	return traverse(adj, table, e.boundDepth(depth)), nil
}

// Downstream returns tables consuming the given table, bounded by depth.
func (e *Engine) Downstream(ctx context.Context, table string, depth int) ([]models.LineageNode, error) {
	adj, err := e.adjacency(ctx, false)
	if err != nil {
		return nil, err
	}
	return traverse(adj, table, e.boundDepth(depth)), nil
}

// BlastRadiusFor aggregates the full-depth downstream traversal.
func (e *Engine) BlastRadiusFor(ctx context.Context, table string) (*models.BlastRadius, error) {
	down, err := e.adjacency(ctx, false)
	if err != nil {
		return nil, err
	}
	nodes := traverse(down, table, e.opts.MaxDepth)

	radius := &models.BlastRadius{
		AffectedTables: nodes,
		Total:          len(nodes),
	}
	for _, n := range nodes {
		if n.Depth > radius.MaxDepth {
			radius.MaxDepth = n.Depth
		}
		if len(down[n.Table]) == 0 {
			radius.HasTerminalConsumers = true
		}
	}
	return radius, nil
}

// Path returns the shortest source→target path by hop count, ties broken by
// highest product confidence. ErrNoPath-free: a nil slice means unreachable.
func (e *Engine) Path(ctx context.Context, source, target string) ([]string, error) {
	adj, err := e.adjacency(ctx, false)
	if err != nil {
		return nil, err
	}

	type state struct {
		confidence float64
		path       []string
	}
	best := map[string]state{source: {confidence: 1, path: []string{source}}}
	frontier := []string{source}
	visited := map[string]bool{source: true}

	for len(frontier) > 0 && !visited[target] {
		sort.Strings(frontier)
		var next []string
		reached := make(map[string]state)
		for _, node := range frontier {
			cur := best[node]
			for _, edge := range adj[node] {
				if visited[edge.to] {
					continue
				}
				candidate := state{
					confidence: cur.confidence * edge.confidence,
					path:       append(append([]string{}, cur.path...), edge.to),
				}
				if prev, ok := reached[edge.to]; !ok || candidate.confidence > prev.confidence {
					reached[edge.to] = candidate
				}
			}
		}
		for node, st := range reached {
			best[node] = st
			visited[node] = true
			next = append(next, node)
		}
		frontier = next
	}

	if st, ok := best[target]; ok && target != source {
		return st.path, nil
	}
	if target == source {
		return []string{source}, nil
	}
	return nil, nil
}

// Graph returns the full non-stale graph for API consumption.
func (e *Engine) Graph(ctx context.Context) ([]string, []models.LineageEdge, error) {
	edges, err := e.freshEdges(ctx)
	if err != nil {
		return nil, nil, err
	}
	nodeSet := make(map[string]bool)
	for _, edge := range edges {
		nodeSet[edge.Source] = true
		nodeSet[edge.Target] = true
	}
	nodes := make([]string, 0, len(nodeSet))
	for n := range nodeSet {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	return nodes, edges, nil
}

func (e *Engine) boundDepth(depth int) int {
	if depth <= 0 || depth > e.opts.MaxDepth {
		return e.opts.MaxDepth
	}
	return depth
}

func (e *Engine) freshEdges(ctx context.Context) ([]models.LineageEdge, error) {
	cutoff := time.Now().UTC().Add(-e.opts.StaleAfter)
	edges, err := e.store.ListFresh(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to load lineage edges: %w", err)
	}
	filtered := edges[:0]
	for _, edge := range edges {
		if edge.Confidence >= e.opts.MinConfidence {
			filtered = append(filtered, edge)
		}
	}
	return filtered, nil
}

type halfEdge struct {
	to         string
	confidence float64
}

// adjacency builds the traversal map over fresh edges. reverse=true builds
// the upstream view (target -> sources).
func (e *Engine) adjacency(ctx context.Context, reverse bool) (map[string][]halfEdge, error) {
	edges, err := e.freshEdges(ctx)
	if err != nil {
		return nil, err
	}
	adj := make(map[string][]halfEdge)
	for _, edge := range edges {
		from, to := edge.Source, edge.Target
		if reverse {
			from, to = to, from
		}
		adj[from] = append(adj[from], halfEdge{to: to, confidence: edge.Confidence})
	}
	for _, neighbors := range adj {
		sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].to < neighbors[j].to })
	}
	return adj, nil
}

// traverse runs a bounded BFS from root. Each node is reported once at its
// first-reached depth, carrying the best product confidence at that depth.
// The visited set guards against cycles and self-edges.
func traverse(adj map[string][]halfEdge, root string, maxDepth int) []models.LineageNode {
	visited := map[string]bool{root: true}
	frontier := map[string]float64{root: 1}
	var out []models.LineageNode

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		next := make(map[string]float64)
		nodes := sortedKeys(frontier)
		for _, node := range nodes {
			conf := frontier[node]
			for _, edge := range adj[node] {
				if visited[edge.to] {
					continue
				}
				candidate := conf * edge.confidence
				if candidate > next[edge.to] {
					next[edge.to] = candidate
				}
			}
		}
		for _, node := range sortedKeys(next) {
			visited[node] = true
			out = append(out, models.LineageNode{Table: node, Depth: depth, Confidence: next[node]})
		}
		frontier = next
	}
	return out
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
