package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallnest/docrag/store"
)

// RedisCatalog implements store.Catalog using Redis
type RedisCatalog struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ store.Catalog = (*RedisCatalog)(nil)

// RedisOptions configuration for Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // Key prefix, default "docrag:"
}

// NewRedisCatalog creates a new Redis catalog
func NewRedisCatalog(opts RedisOptions) *RedisCatalog {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisCatalogWithClient(client, opts.Prefix)
}

// NewRedisCatalogFromURL creates a catalog from a redis:// or rediss:// URL
func NewRedisCatalogFromURL(url, prefix string) (*RedisCatalog, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewRedisCatalogWithClient(redis.NewClient(opts), prefix), nil
}

// NewRedisCatalogWithClient creates a catalog on an existing client
func NewRedisCatalogWithClient(client redis.UniversalClient, prefix string) *RedisCatalog {
	if prefix == "" {
		prefix = "docrag:"
	}
	return &RedisCatalog{
		client: client,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *RedisCatalog) documentKey(id string) string {
	return fmt.Sprintf("%sdocument:%s", s.prefix, id)
}

func (s *RedisCatalog) indexKey() string {
	return s.prefix + "documents"
}

// Put inserts or replaces a document
func (s *RedisCatalog) Put(ctx context.Context, doc *store.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document id is required")
	}

	var created time.Time
	old, err := s.Get(ctx, doc.ID)
	switch {
	case err == nil:
		created = old.CreatedAt
	case !errors.Is(err, store.ErrNotFound):
		return err
	}
	store.Stamp(doc, created, s.now())

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.documentKey(doc.ID), data, 0)
	pipe.ZAddNX(ctx, s.indexKey(), redis.Z{
		Score:  float64(doc.CreatedAt.UnixMilli()),
		Member: doc.ID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save document to redis: %w", err)
	}
	return nil
}

// Get retrieves a document by ID
func (s *RedisCatalog) Get(ctx context.Context, id string) (*store.Document, error) {
	data, err := s.client.Get(ctx, s.documentKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load document from redis: %w", err)
	}

	var doc store.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return &doc, nil
}

// List returns all documents, oldest first
func (s *RedisCatalog) List(ctx context.Context) ([]*store.Document, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	docs := []*store.Document{}
	if len(ids) == 0 {
		return docs, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.documentKey(id)
	}

	// MGet returns nil for index entries whose record is gone.
	results, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch documents: %w", err)
	}

	for _, result := range results {
		raw, ok := result.(string)
		if !ok {
			continue
		}
		var doc store.Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			continue
		}
		docs = append(docs, &doc)
	}
	return docs, nil
}

// SetStatus updates the status of an existing document
func (s *RedisCatalog) SetStatus(ctx context.Context, id string, status store.Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}

	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	doc.Status = status
	return s.Put(ctx, doc)
}

// Close closes the client
func (s *RedisCatalog) Close() error {
	return s.client.Close()
}
