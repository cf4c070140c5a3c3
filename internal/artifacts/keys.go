package artifacts

import (
	"path"
	"strings"
)

// Artifact names stored under the per-document estimates prefix.
const (
	ExtractionArtifact  = "extraction.json"
	EstimateArtifact    = "estimate.json"
	EstimatePDFArtifact = "estimate.pdf"
)

// UploadKey returns the canonical storage key for a source document:
// uploads/{ownerId}/{documentId}.{ext}.
func UploadKey(ownerID, documentID, ext string) string {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	name := documentID
	if ext != "" {
		name = documentID + "." + ext
	}
	return path.Join("uploads", ownerID, name)
}

// EstimateKey returns the canonical storage key for a generated artifact:
// estimates/{ownerId}/{documentId}/{artifactName}.
func EstimateKey(ownerID, documentID, artifactName string) string {
	return path.Join("estimates", ownerID, documentID, artifactName)
}
