package store

import (
	"testing"

	"pdf-rag/internal/models"
)

func hit(idx int, sim float64) models.RetrievedChunk {
	return models.RetrievedChunk{Chunk: models.Chunk{ChunkIndex: idx}, Similarity: sim}
}

func TestRankChunks(t *testing.T) {
	in := []models.RetrievedChunk{
		hit(4, 0.5), hit(1, 0.9), hit(3, 0.3), hit(2, 0.5), hit(0, 0.2), hit(5, 0.7),
	}
	got := RankChunks(in, 0.3, 3)
	want := []int{1, 5, 2}
	if len(got) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(got))
	}
	for i, idx := range want {
		if got[i].ChunkIndex != idx {
			t.Fatalf("position %d: expected chunk %d, got %d", i, idx, got[i].ChunkIndex)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Similarity > got[i-1].Similarity {
			t.Fatalf("similarities not descending: %v", got)
		}
	}
	// input untouched
	if in[0].ChunkIndex != 4 {
		t.Fatal("input slice was reordered")
	}
}

func TestRankChunksThresholdIsStrict(t *testing.T) {
	got := RankChunks([]models.RetrievedChunk{hit(0, 0.3), hit(1, 0.2)}, 0.3, 5)
	if len(got) != 0 {
		t.Fatalf("expected no chunks, got %v", got)
	}
}

func TestListFilterNormalize(t *testing.T) {
	f := ListFilter{Page: 0, Limit: 500}.Normalize()
	if f.Page != 1 || f.Limit != 100 || f.Offset() != 0 {
		t.Fatalf("unexpected %+v", f)
	}
	f = ListFilter{Page: 3, Limit: 0}.Normalize()
	if f.Limit != 20 || f.Offset() != 40 {
		t.Fatalf("unexpected %+v", f)
	}
}
