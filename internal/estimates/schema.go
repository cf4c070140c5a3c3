package estimates

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// estimateSchema is deliberately loose: the estimation tool's schema has
// drifted over releases, so only the envelope shape is enforced. Totals are
// resolved separately by TotalAmount with its own field precedence.
const estimateSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "summary": {
      "type": "object",
      "properties": {
        "total_usd": {"type": "number"},
        "total_amount": {"type": "number"},
        "total_cost": {"type": "number"},
        "total_estimate": {"type": "number"}
      }
    },
    "items": {
      "type": "array",
      "items": {"type": "object"}
    }
  }
}`

var compiledEstimateSchema = jsonschema.MustCompileString("estimate.json", estimateSchema)

// ValidateEstimatePayload rejects estimation output whose envelope does not
// match the expected shape. A payload with no summary at all still passes;
// that case is handled by TotalAmount returning 0.
func ValidateEstimatePayload(payload map[string]any) error {
	if err := compiledEstimateSchema.Validate(payload); err != nil {
		return fmt.Errorf("estimate payload failed validation: %w", err)
	}
	return nil
}
