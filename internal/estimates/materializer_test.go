package estimates

import (
	"context"
	"testing"
)

func TestTotalAmountFieldPrecedence(t *testing.T) {
	payload := map[string]any{
		"summary": map[string]any{
			"total_estimate": 999.0,
			"total_usd":      1500.25,
		},
	}
	if got := TotalAmount(payload); got != 1500.25 {
		t.Fatalf("TotalAmount = %v, want 1500.25 (total_usd wins over total_estimate)", got)
	}
}

func TestTotalAmountFallsBackAcrossSchemaRevisions(t *testing.T) {
	cases := []struct {
		name    string
		summary map[string]any
		want    float64
	}{
		{"legacy total_estimate only", map[string]any{"total_estimate": 820.0}, 820},
		{"total_cost generation", map[string]any{"total_cost": 940.5}, 940.5},
		{"non-numeric newer field is skipped", map[string]any{"total_usd": "n/a", "total_amount": 75.0}, 75},
		{"no totals at all", map[string]any{"notes": "tbd"}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := TotalAmount(map[string]any{"summary": tc.summary})
			if got != tc.want {
				t.Fatalf("TotalAmount = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTotalAmountMissingSummary(t *testing.T) {
	if got := TotalAmount(map[string]any{"items": []any{}}); got != 0 {
		t.Fatalf("TotalAmount = %v, want 0", got)
	}
}

func TestUpsertPreservesRecordID(t *testing.T) {
	repo := NewMemoryRepo()
	m := &Materializer{Repo: repo}
	ctx := context.Background()

	first, err := m.Upsert(ctx, "user-1", "doc-1", "https://assets.example.com/e1.json", map[string]any{
		"summary": map[string]any{"total_usd": 100.0},
	})
	if err != nil {
		t.Fatalf("first Upsert: %v", err)
	}
	if first.Status != StatusFinal {
		t.Fatalf("status = %q, want %q", first.Status, StatusFinal)
	}

	second, err := m.Upsert(ctx, "user-1", "doc-1", "https://assets.example.com/e2.json", map[string]any{
		"summary": map[string]any{"total_usd": 250.0},
	})
	if err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("record id changed on regeneration: %q -> %q", first.ID, second.ID)
	}
	if second.TotalAmount != 250 || second.ArtifactURL != "https://assets.example.com/e2.json" {
		t.Fatalf("fields not overwritten: %+v", second)
	}
	if second.UpdatedAt.Before(first.UpdatedAt) {
		t.Fatalf("updatedAt moved backwards: %v -> %v", first.UpdatedAt, second.UpdatedAt)
	}
}
