// Package highlight converts backend highlight geometry into normalized
// percentage rectangles for page-overlay rendering.
package highlight

import (
	"github.com/finlens/copilot/rag"
)

// Fallback span lengths, in page percents, used when a non-degenerate span
// cannot be derived from the record.
const (
	HorizontalFallbackLength = 100
	VerticalFallbackLength   = 30
)

// Highlight is a normalized page rectangle. Every coordinate is a percentage
// in [0, 100] and each end strictly exceeds its start.
type Highlight struct {
	ID     string  `json:"id"`
	Page   int     `json:"page"`
	XStart float64 `json:"xStart"`
	XEnd   float64 `json:"xEnd"`
	YStart float64 `json:"yStart"`
	YEnd   float64 `json:"yEnd"`
}

// Normalize converts one backend record into a highlight. Explicit percentage
// fields win; otherwise the bounding box is scaled by the page dimensions;
// otherwise the fallback span is used. The result is always non-degenerate.
func Normalize(record rag.HighlightRecord) Highlight {
	var x0, x1, y0, y1 float64
	hasBox := len(record.BBox) >= 4
	if hasBox {
		x0, y0, x1, y1 = record.BBox[0], record.BBox[1], record.BBox[2], record.BBox[3]
	}

	xStart, xEnd := span(record.XStartPct, record.XEndPct, x0, x1, record.PageWidth, hasBox, 0, HorizontalFallbackLength)
	yStart, yEnd := span(record.YStartPct, record.YEndPct, y0, y1, record.PageHeight, hasBox, 0, VerticalFallbackLength)

	return Highlight{
		ID:     recordID(record),
		Page:   record.Page,
		XStart: xStart,
		XEnd:   xEnd,
		YStart: yStart,
		YEnd:   yEnd,
	}
}

// NormalizeAll normalizes every record and indexes each highlight under every
// identifier variant the backend supplied, so downstream lookups by chunk id
// or item id both succeed.
func NormalizeAll(records []rag.HighlightRecord) map[string]Highlight {
	highlights := make(map[string]Highlight, len(records))
	for _, record := range records {
		highlight := Normalize(record)
		for _, key := range []string{record.ID, record.ChunkID, record.ItemID} {
			if key != "" {
				highlights[key] = highlight
			}
		}
	}
	return highlights
}

// span resolves one axis to a valid percentage range.
func span(startPct, endPct *float64, coordStart, coordEnd, dimension float64, hasBox bool, fallbackStart, fallbackLength float64) (float64, float64) {
	if startPct != nil && endPct != nil && *endPct > *startPct {
		return widen(clamp(*startPct), clamp(*endPct), fallbackLength)
	}
	if hasBox && dimension > 0 {
		start := clamp(100 * coordStart / dimension)
		end := clamp(100 * coordEnd / dimension)
		return widen(start, end, fallbackLength)
	}
	return widen(clamp(fallbackStart), clamp(fallbackStart+fallbackLength), fallbackLength)
}

// widen guarantees a non-degenerate range, shifting the start back when the
// widened end would overshoot the page.
func widen(start, end, fallbackLength float64) (float64, float64) {
	if end > start {
		return start, end
	}
	end = start + fallbackLength
	if end > 100 {
		end = 100
		if start >= end {
			start = end - fallbackLength
			if start < 0 {
				start = 0
			}
		}
	}
	return start, end
}

func clamp(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

// recordID picks the first identifier variant present.
func recordID(record rag.HighlightRecord) string {
	for _, key := range []string{record.ID, record.ChunkID, record.ItemID} {
		if key != "" {
			return key
		}
	}
	return ""
}
