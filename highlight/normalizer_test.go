package highlight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlens/copilot/rag"
)

func pct(value float64) *float64 { return &value }

func TestNormalizePercentageFieldsWin(t *testing.T) {
	record := rag.HighlightRecord{
		ID:        "h1",
		Page:      3,
		XStartPct: pct(10), XEndPct: pct(40),
		YStartPct: pct(5), YEndPct: pct(20),
		// A bounding box that would produce different values must lose.
		BBox:      []float64{0, 0, 500, 500},
		PageWidth: 1000, PageHeight: 1000,
	}

	highlight := Normalize(record)
	assert.Equal(t, 10.0, highlight.XStart)
	assert.Equal(t, 40.0, highlight.XEnd)
	assert.Equal(t, 5.0, highlight.YStart)
	assert.Equal(t, 20.0, highlight.YEnd)
	assert.Equal(t, 3, highlight.Page)
}

func TestNormalizeClampsPercentages(t *testing.T) {
	record := rag.HighlightRecord{
		XStartPct: pct(-10), XEndPct: pct(150),
		YStartPct: pct(20), YEndPct: pct(120),
	}

	highlight := Normalize(record)
	assert.Equal(t, 0.0, highlight.XStart)
	assert.Equal(t, 100.0, highlight.XEnd)
	assert.Equal(t, 20.0, highlight.YStart)
	assert.Equal(t, 100.0, highlight.YEnd)
}

func TestNormalizeBoundingBox(t *testing.T) {
	record := rag.HighlightRecord{
		BBox:      []float64{100, 200, 300, 400},
		PageWidth: 1000, PageHeight: 800,
	}

	highlight := Normalize(record)
	assert.Equal(t, 10.0, highlight.XStart)
	assert.Equal(t, 30.0, highlight.XEnd)
	assert.Equal(t, 25.0, highlight.YStart)
	assert.Equal(t, 50.0, highlight.YEnd)
}

func TestNormalizeDegenerateSpansAreWidened(t *testing.T) {
	tests := []struct {
		name   string
		record rag.HighlightRecord
	}{
		{
			name: "zero width box",
			record: rag.HighlightRecord{
				BBox:      []float64{500, 100, 500, 100},
				PageWidth: 1000, PageHeight: 800,
			},
		},
		{
			name: "inverted box",
			record: rag.HighlightRecord{
				BBox:      []float64{600, 700, 400, 500},
				PageWidth: 1000, PageHeight: 800,
			},
		},
		{
			name: "degenerate at page edge",
			record: rag.HighlightRecord{
				BBox:      []float64{1000, 800, 1000, 800},
				PageWidth: 1000, PageHeight: 800,
			},
		},
		{
			name:   "no geometry at all",
			record: rag.HighlightRecord{},
		},
		{
			name: "equal percentage fields",
			record: rag.HighlightRecord{
				XStartPct: pct(50), XEndPct: pct(50),
				YStartPct: pct(30), YEndPct: pct(10),
			},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			highlight := Normalize(test.record)
			assert.Greater(t, highlight.XEnd, highlight.XStart)
			assert.Greater(t, highlight.YEnd, highlight.YStart)
			assert.GreaterOrEqual(t, highlight.XStart, 0.0)
			assert.LessOrEqual(t, highlight.XEnd, 100.0)
			assert.GreaterOrEqual(t, highlight.YStart, 0.0)
			assert.LessOrEqual(t, highlight.YEnd, 100.0)
		})
	}
}

func TestNormalizeFallbackSpan(t *testing.T) {
	highlight := Normalize(rag.HighlightRecord{})
	assert.Equal(t, 0.0, highlight.XStart)
	assert.Equal(t, float64(HorizontalFallbackLength), highlight.XEnd)
	assert.Equal(t, 0.0, highlight.YStart)
	assert.Equal(t, float64(VerticalFallbackLength), highlight.YEnd)
}

func TestNormalizeAllIndexesEveryIDVariant(t *testing.T) {
	records := []rag.HighlightRecord{
		{ID: "h1", ChunkID: "chunk-1", ItemID: "item-1", XStartPct: pct(1), XEndPct: pct(2), YStartPct: pct(1), YEndPct: pct(2)},
		{ChunkID: "chunk-2", XStartPct: pct(3), XEndPct: pct(4), YStartPct: pct(3), YEndPct: pct(4)},
	}

	highlights := NormalizeAll(records)
	require.Len(t, highlights, 4)
	assert.Equal(t, highlights["h1"], highlights["chunk-1"])
	assert.Equal(t, highlights["h1"], highlights["item-1"])
	assert.Contains(t, highlights, "chunk-2")
}
