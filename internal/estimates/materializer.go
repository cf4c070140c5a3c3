package estimates

import (
	"context"
	"encoding/json"
	"time"
)

// totalAmountFields lists the summary field names the estimate schema has
// used over time, newest first. The first present numeric value wins.
var totalAmountFields = []string{"total_usd", "total_amount", "total_cost", "total_estimate"}

// TotalAmount extracts the estimate total from the payload's summary
// section. A missing summary or missing total field yields 0, not an error.
func TotalAmount(estimate map[string]any) float64 {
	summary, ok := estimate["summary"].(map[string]any)
	if !ok {
		return 0
	}
	for _, field := range totalAmountFields {
		if v, present := summary[field]; present {
			if n, numeric := asNumber(v); numeric {
				return n
			}
		}
	}
	return 0
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Materializer persists merged stage outputs as the document's single
// cached record.
type Materializer struct {
	Repo Repo
}

// Upsert writes the successful result for a document. The record id is
// preserved across regenerations by the repo's upsert.
func (m *Materializer) Upsert(ctx context.Context, userID, documentID, artifactURL string, estimate map[string]any) (EstimateRecord, error) {
	return m.Repo.Finalize(ctx, userID, documentID, artifactURL, TotalAmount(estimate), time.Now().UTC())
}
