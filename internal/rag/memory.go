// Package rag provides the vector memory that grounds AI answers on
// previously saved knowledge.
//
// Text snippets saved via the "memoria:" / "agregar:" commands are embedded
// and stored in a chromem-go collection; free-text questions query the
// collection for the closest snippets and feed them to the AI as context.
package rag

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"
)

// DefaultCollection is the collection name used when none is configured.
const DefaultCollection = "avanbot-memoria"

// Memory stores and retrieves knowledge snippets.
type Memory struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// Opts holds configuration applied via Option.
type Opts struct {
	PersistPath string
	Collection  string
	Embedding   chromem.EmbeddingFunc
}

// Option configures the memory.
type Option func(*Opts)

// WithPersistPath enables on-disk persistence under the given directory.
func WithPersistPath(path string) Option {
	return func(o *Opts) {
		o.PersistPath = path
	}
}

// WithCollection overrides the collection name.
func WithCollection(name string) Option {
	return func(o *Opts) {
		o.Collection = name
	}
}

// WithEmbedding overrides the embedding function, for tests or alternative
// providers. The default uses the OpenAI embeddings API with OPENAI_API_KEY.
func WithEmbedding(fn chromem.EmbeddingFunc) Option {
	return func(o *Opts) {
		o.Embedding = fn
	}
}

// NewMemory creates the vector memory. Without a persist path the memory
// lives only for the process lifetime.
func NewMemory(opts ...Option) (*Memory, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Embedding == nil {
		cfg.Embedding = chromem.NewEmbeddingFuncOpenAI(os.Getenv("OPENAI_API_KEY"), chromem.EmbeddingModelOpenAI3Small)
	}

	var db *chromem.DB
	var err error
	if cfg.PersistPath != "" {
		persistFile := filepath.Join(cfg.PersistPath, "memoria.gob")
		db, err = chromem.NewPersistentDB(persistFile, false)
		if err != nil {
			return nil, fmt.Errorf("failed to create persistent vector DB: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection %s: %w", cfg.Collection, err)
	}

	slog.Debug("Memory created", "collection", cfg.Collection, "persistent", cfg.PersistPath != "")
	return &Memory{db: db, collection: collection}, nil
}

// Save stores one knowledge snippet with its source tag.
func (m *Memory) Save(ctx context.Context, text, source string) error {
	if m == nil {
		return fmt.Errorf("memory not configured")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("cannot save empty text")
	}

	sum := sha1.Sum([]byte(text))
	doc := chromem.Document{
		ID:      hex.EncodeToString(sum[:]),
		Content: text,
		Metadata: map[string]string{
			"fuente":   source,
			"guardado": time.Now().UTC().Format(time.RFC3339),
		},
	}
	if err := m.collection.AddDocument(ctx, doc); err != nil {
		slog.Error("Memory Save failed", "error", err)
		return fmt.Errorf("failed to save memory document: %w", err)
	}
	slog.Info("Memory snippet saved", "source", source, "chars", len(text))
	return nil
}

// Search returns the k closest snippets joined by newlines, or an empty
// string when the memory has nothing relevant.
func (m *Memory) Search(ctx context.Context, query string, k int) (string, error) {
	if m == nil {
		return "", nil
	}
	if k <= 0 {
		k = 3
	}
	count := m.collection.Count()
	if count == 0 {
		return "", nil
	}
	if k > count {
		k = count
	}

	results, err := m.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		slog.Error("Memory Search failed", "error", err, "query", query)
		return "", fmt.Errorf("failed to query memory: %w", err)
	}

	var parts []string
	for _, r := range results {
		parts = append(parts, r.Content)
	}
	return strings.Join(parts, "\n"), nil
}

// Count returns how many snippets the memory holds.
func (m *Memory) Count() int {
	if m == nil {
		return 0
	}
	return m.collection.Count()
}
