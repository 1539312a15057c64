package store

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/smallnest/docrag/rag"
)

// FalkorDBGraph stores triples in a FalkorDB graph. Entities are nodes
// labeled Entity and keyed by exact name; each triple is a REL edge carrying
// its predicate and document id.
type FalkorDBGraph struct {
	client redis.UniversalClient
	graph  Graph
}

var _ rag.TripleGraph = (*FalkorDBGraph)(nil)

// NewFalkorDBGraph creates a new FalkorDB triple graph
func NewFalkorDBGraph(connectionString string) (*FalkorDBGraph, error) {
	// Format: falkordb://[:password@]host:port/graph_name
	u, err := url.Parse(connectionString)
	if err != nil {
		return nil, fmt.Errorf("invalid connection string: %w", err)
	}

	addr := u.Host
	if addr == "" {
		return nil, fmt.Errorf("invalid connection string: missing host")
	}
	graphName := strings.TrimPrefix(u.Path, "/")
	if graphName == "" {
		graphName = "docrag"
	}

	opts := &redis.Options{
		Addr:     addr,
		Protocol: 2,
	}
	if u.User != nil {
		opts.Username = u.User.Username()
		opts.Password, _ = u.User.Password()
	}

	return NewFalkorDBGraphWithClient(redis.NewClient(opts), graphName), nil
}

// NewFalkorDBGraphWithClient wraps an existing redis client.
func NewFalkorDBGraphWithClient(client redis.UniversalClient, graphName string) *FalkorDBGraph {
	return &FalkorDBGraph{client: client, graph: NewGraph(graphName, client)}
}

// UpsertTriples writes the batch in a single statement.
func (f *FalkorDBGraph) UpsertTriples(ctx context.Context, triples []rag.Triple) error {
	if len(triples) == 0 {
		return nil
	}

	rows := make([]map[string]interface{}, len(triples))
	for i, t := range triples {
		rows[i] = map[string]interface{}{
			"s":      t.Subject,
			"p":      t.Predicate,
			"o":      t.Object,
			"doc_id": t.DocumentID,
		}
	}

	query := `UNWIND $rows AS row
MERGE (s:Entity {name: row.s})
MERGE (o:Entity {name: row.o})
CREATE (s)-[:REL {predicate: row.p, doc_id: row.doc_id}]->(o)`

	if _, err := f.graph.Query(ctx, query, map[string]interface{}{"rows": rows}); err != nil {
		return fmt.Errorf("failed to upsert triples: %w", err)
	}
	return nil
}

// MatchTriples returns edges where either endpoint name contains one of the
// entities, ignoring case.
func (f *FalkorDBGraph) MatchTriples(ctx context.Context, entities []string, documentID string, limit int) ([]rag.Triple, error) {
	params := map[string]interface{}{}
	var or []string
	for _, e := range entities {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		name := fmt.Sprintf("e%d", len(or))
		params[name] = e
		or = append(or, fmt.Sprintf("toLower(s.name) CONTAINS $%s OR toLower(o.name) CONTAINS $%s", name, name))
	}
	if len(or) == 0 {
		return nil, nil
	}

	where := "(" + strings.Join(or, " OR ") + ")"
	if documentID != "" {
		params["doc_id"] = documentID
		where += " AND r.doc_id = $doc_id"
	}

	return f.readTriples(ctx, "WHERE "+where, params, limit)
}

// SampleTriples returns up to limit edges, optionally scoped to a document.
func (f *FalkorDBGraph) SampleTriples(ctx context.Context, documentID string, limit int) ([]rag.Triple, error) {
	params := map[string]interface{}{}
	where := ""
	if documentID != "" {
		params["doc_id"] = documentID
		where = "WHERE r.doc_id = $doc_id"
	}
	return f.readTriples(ctx, where, params, limit)
}

func (f *FalkorDBGraph) readTriples(ctx context.Context, where string, params map[string]interface{}, limit int) ([]rag.Triple, error) {
	query := "MATCH (s:Entity)-[r:REL]->(o:Entity) " + where +
		" RETURN s.name, r.predicate, o.name, r.doc_id"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	qr, err := f.graph.Query(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to query triples: %w", err)
	}

	triples := make([]rag.Triple, 0, len(qr.Results))
	for _, row := range qr.Results {
		if len(row) < 4 {
			continue
		}
		triples = append(triples, rag.Triple{
			Subject:    cellString(row[0]),
			Predicate:  cellString(row[1]),
			Object:     cellString(row[2]),
			DocumentID: cellString(row[3]),
		})
	}
	return triples, nil
}

// Ping runs a trivial query to prove the graph module answers.
func (f *FalkorDBGraph) Ping(ctx context.Context) error {
	if _, err := f.graph.Query(ctx, "RETURN 1", nil); err != nil {
		return fmt.Errorf("falkordb ping: %w", err)
	}
	return nil
}

// Close closes the underlying redis client
func (f *FalkorDBGraph) Close() error {
	return f.client.Close()
}
