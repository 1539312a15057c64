package store

import (
	"context"
	"strings"
	"sync"

	"github.com/smallnest/docrag/rag"
)

// NewTripleGraph creates a triple graph based on the database URL
func NewTripleGraph(databaseURL string) (rag.TripleGraph, error) {
	switch {
	case strings.HasPrefix(databaseURL, "memory://"):
		return NewMemoryGraph(), nil
	case strings.HasPrefix(databaseURL, "falkordb://"):
		return NewFalkorDBGraph(databaseURL)
	default:
		return nil, unsupported(databaseURL, "memory://", "falkordb://")
	}
}

type memoryEdge struct {
	subject, object int
	predicate       string
	documentID      string
}

// MemoryGraph implements an in-memory triple graph. Nodes are identified by
// exact name and edges may repeat.
type MemoryGraph struct {
	mu     sync.RWMutex
	nodes  []string
	byName map[string]int
	edges  []memoryEdge
}

var _ rag.TripleGraph = (*MemoryGraph)(nil)

// NewMemoryGraph creates an empty MemoryGraph
func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{byName: make(map[string]int)}
}

func (m *MemoryGraph) node(name string) int {
	if id, ok := m.byName[name]; ok {
		return id
	}
	id := len(m.nodes)
	m.nodes = append(m.nodes, name)
	m.byName[name] = id
	return id
}

// UpsertTriples merges endpoint nodes and appends one edge per triple.
func (m *MemoryGraph) UpsertTriples(ctx context.Context, triples []rag.Triple) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range triples {
		m.edges = append(m.edges, memoryEdge{
			subject:    m.node(t.Subject),
			object:     m.node(t.Object),
			predicate:  t.Predicate,
			documentID: t.DocumentID,
		})
	}
	return nil
}

// MatchTriples returns edges whose endpoint names contain any entity, ignoring case.
func (m *MemoryGraph) MatchTriples(ctx context.Context, entities []string, documentID string, limit int) ([]rag.Triple, error) {
	needles := make([]string, 0, len(entities))
	for _, e := range entities {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			needles = append(needles, e)
		}
	}
	if len(needles) == 0 {
		return nil, nil
	}

	return m.collect(documentID, limit, func(e memoryEdge) bool {
		s := strings.ToLower(m.nodes[e.subject])
		o := strings.ToLower(m.nodes[e.object])
		for _, n := range needles {
			if strings.Contains(s, n) || strings.Contains(o, n) {
				return true
			}
		}
		return false
	}), nil
}

// SampleTriples returns the first limit edges, optionally scoped to a document.
func (m *MemoryGraph) SampleTriples(ctx context.Context, documentID string, limit int) ([]rag.Triple, error) {
	return m.collect(documentID, limit, func(memoryEdge) bool { return true }), nil
}

func (m *MemoryGraph) collect(documentID string, limit int, keep func(memoryEdge) bool) []rag.Triple {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []rag.Triple
	for _, e := range m.edges {
		if limit > 0 && len(out) >= limit {
			break
		}
		if documentID != "" && e.documentID != documentID {
			continue
		}
		if !keep(e) {
			continue
		}
		out = append(out, rag.Triple{
			Subject:    m.nodes[e.subject],
			Predicate:  e.predicate,
			Object:     m.nodes[e.object],
			DocumentID: e.documentID,
		})
	}
	return out
}

// NodeCount returns the number of distinct entity nodes.
func (m *MemoryGraph) NodeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}

// Ping always succeeds
func (m *MemoryGraph) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (m *MemoryGraph) Close() error {
	return nil
}
