package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Graph is a named FalkorDB graph reachable through a redis connection.
type Graph struct {
	Name string
	Conn redis.UniversalClient
}

// NewGraph creates a new graph handle
func NewGraph(name string, conn redis.UniversalClient) Graph {
	return Graph{Name: name, Conn: conn}
}

// QueryResult represents the results of a query.
type QueryResult struct {
	Header     []string
	Results    [][]interface{}
	Statistics []string
}

// Query executes a Cypher query. Parameters are sent in the CYPHER header and
// referenced in the query as $name.
func (g *Graph) Query(ctx context.Context, q string, params map[string]interface{}) (QueryResult, error) {
	qr := QueryResult{}

	res, err := g.Conn.Do(ctx, "GRAPH.QUERY", g.Name, cypherHeader(params)+q).Result()
	if err != nil {
		return qr, err
	}

	r, ok := res.([]interface{})
	if !ok {
		return qr, fmt.Errorf("unexpected response type: %T", res)
	}

	switch len(r) {
	case 3:
		if header, ok := r[0].([]interface{}); ok {
			qr.Header = make([]string, len(header))
			for i, h := range header {
				qr.Header[i] = fmt.Sprint(h)
			}
		}
		qr.Results = parseRows(r[1])
		qr.Statistics = parseStats(r[2])
	case 1:
		// write-only queries return the statistics alone
		qr.Statistics = parseStats(r[0])
	default:
		return qr, fmt.Errorf("unexpected response length: %d", len(r))
	}

	return qr, nil
}

func parseRows(v interface{}) [][]interface{} {
	rows, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([][]interface{}, 0, len(rows))
	for _, row := range rows {
		if vals, ok := row.([]interface{}); ok {
			out = append(out, vals)
		}
	}
	return out
}

func parseStats(v interface{}) []string {
	stats, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, len(stats))
	for i, s := range stats {
		out[i] = fmt.Sprint(s)
	}
	return out
}

// cypherHeader renders params as "CYPHER k1=v1 k2=v2 " in key order.
func cypherHeader(params map[string]interface{}) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("CYPHER ")
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(cypherValue(params[k]))
		b.WriteByte(' ')
	}
	return b.String()
}

// cypherValue renders a Go value as a Cypher literal.
func cypherValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return quoteString(x)
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []string:
		parts := make([]string, len(x))
		for i, s := range x {
			parts[i] = quoteString(s)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case []interface{}:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = cypherValue(e)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case []map[string]interface{}:
		parts := make([]string, len(x))
		for i, m := range x {
			parts[i] = cypherValue(m)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case map[string]interface{}:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ":" + cypherValue(x[k])
		}
		return "{" + strings.Join(parts, ",") + "}"
	default:
		return quoteString(fmt.Sprint(x))
	}
}

// quoteString produces a double-quoted Cypher string literal.
func quoteString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// cellString converts a result cell to a string; null becomes "".
func cellString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}
