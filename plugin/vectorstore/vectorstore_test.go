package vectorstore

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeEmbed maps text onto one of two unit vectors so similarity is
// deterministic without a real embedding model.
func fakeEmbed(_ context.Context, text string) ([]float32, error) {
	if strings.Contains(text, "cat") {
		return []float32{0, 1}, nil
	}
	return []float32{1, 0}, nil
}

func TestUpsertAndSearch(t *testing.T) {
	s, err := New(t.TempDir(), fakeEmbed)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.UpsertMessage(ctx, "conv1", 1, "the cat sat on the mat"))
	require.NoError(t, s.UpsertMessage(ctx, "conv2", 2, "stock prices fell sharply"))

	results, err := s.SearchSimilar(ctx, "cat pictures", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "conv1", results[0].ConversationUID)
	require.Equal(t, "the cat sat on the mat", results[0].Content)
}

func TestSearchEmptyIndex(t *testing.T) {
	s, err := New(t.TempDir(), fakeEmbed)
	require.NoError(t, err)

	results, err := s.SearchSimilar(context.Background(), "anything", 5)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestSearchCapsKAtCount(t *testing.T) {
	s, err := New(t.TempDir(), fakeEmbed)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.UpsertMessage(ctx, "conv1", 1, "only entry"))

	results, err := s.SearchSimilar(ctx, "entry", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
}
