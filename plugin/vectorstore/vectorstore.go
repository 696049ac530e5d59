// Package vectorstore keeps an optional semantic index of message content.
// Indexing is best-effort and asynchronous; the transactional full-text
// mirror inside the store is the authoritative search surface.
package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

const collectionName = "messages"

// SearchResult is a single semantic-search hit.
type SearchResult struct {
	ConversationUID string
	Content         string
	Score           float32
}

// Store wraps chromem-go with disk persistence and a single message collection.
type Store struct {
	mu      sync.RWMutex
	db      *chromem.DB
	embedFn chromem.EmbeddingFunc
}

// New creates (or opens) the persistent vector store at dataDir/vectorstore/.
// embedFunc is the embedding function to use — pass chromem.NewEmbeddingFuncDefault
// or an OpenAI-compatible one pointed at your embeddings endpoint.
func New(dataDir string, embedFunc chromem.EmbeddingFunc) (*Store, error) {
	dir := filepath.Join(dataDir, "vectorstore")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create vectorstore dir: %w", err)
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open vectorstore: %w", err)
	}
	return &Store{db: db, embedFn: embedFunc}, nil
}

func (s *Store) getOrCreateCollection() *chromem.Collection {
	col := s.db.GetCollection(collectionName, s.embedFn)
	if col == nil {
		var err error
		col, err = s.db.CreateCollection(collectionName, nil, s.embedFn)
		if err != nil {
			slog.Error("failed to create vector collection", "err", err)
			return nil
		}
	}
	return col
}

// UpsertMessage indexes (or re-indexes) one message's content. The document
// ID is derived from the conversation and message so a re-index after an
// edit overwrites the stale entry.
func (s *Store) UpsertMessage(ctx context.Context, conversationUID string, messageID int32, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.getOrCreateCollection()
	if col == nil {
		return fmt.Errorf("vectorstore: nil collection")
	}

	doc := chromem.Document{
		ID:      fmt.Sprintf("%s/%d", conversationUID, messageID),
		Content: content,
		Metadata: map[string]string{
			"conversation": conversationUID,
		},
	}
	return col.AddDocument(ctx, doc)
}

// SearchSimilar returns the top-k messages most semantically similar to the query.
func (s *Store) SearchSimilar(ctx context.Context, query string, k int) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.getOrCreateCollection()
	if col == nil {
		return nil, nil
	}

	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	var results []chromem.Result
	var err error

	// chromem-go sometimes throws "nResults must be <= number of documents" despite Count checks.
	// Step down k if it fails.
	for attemptK := k; attemptK > 0; attemptK-- {
		results, err = col.Query(ctx, query, attemptK, nil, nil)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, SearchResult{
			ConversationUID: r.Metadata["conversation"],
			Content:         r.Content,
			Score:           r.Similarity,
		})
	}
	return out, nil
}
