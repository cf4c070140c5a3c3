package estimates

import "time"

const (
	StatusProcessing = "processing"
	StatusFinal      = "final"
	StatusFailed     = "failed"
)

// EstimateRecord is the single cached generation result for a source
// document. The id is stable across regenerations so previously shared
// references stay valid; only the payload fields are overwritten.
type EstimateRecord struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"userId"`
	DocumentID          string     `json:"documentId"`
	ArtifactURL         string     `json:"artifactUrl"`
	TotalAmount         float64    `json:"totalAmount"`
	Status              string     `json:"status"`
	ProcessingStartedAt *time.Time `json:"processingStartedAt,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}
