package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"estimate-backend/internal/artifacts"
	"estimate-backend/internal/preflight"
	"estimate-backend/internal/shared/util"
)

// Service contains business logic for documents.
type Service struct {
	Artifacts *artifacts.Adapter
	Repo      DocumentsRepo
	MaxBytes  int64
}

// Upload validates the file, stores it under its canonical upload key and
// records the document. Only PDFs are accepted; the preflight parse catches
// corrupt files before they ever reach the estimation pipeline.
func (s *Service) Upload(ctx context.Context, userID, fileName string, r io.Reader) (Document, error) {
	if userID == "" || fileName == "" {
		return Document{}, ErrInvalidInput
	}
	fileName, err := util.SanitizeFileName(fileName)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
	if ext == "" {
		ext = "pdf"
	}
	if ext != "pdf" {
		return Document{}, fmt.Errorf("%w: only PDF documents are supported", ErrInvalidInput)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return Document{}, err
	}
	if s.MaxBytes > 0 && int64(len(data)) > s.MaxBytes {
		return Document{}, ErrTooLarge
	}
	if len(data) == 0 {
		return Document{}, fmt.Errorf("%w: file is empty", ErrInvalidInput)
	}

	check, err := preflight.CheckPDF(data)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	id := uuid.NewString()
	key := artifacts.UploadKey(userID, id, ext)
	if err := s.Artifacts.Put(ctx, key, "application/pdf", data); err != nil {
		return Document{}, err
	}

	doc := Document{
		ID:         id,
		UserID:     userID,
		FileName:   fileName,
		MimeType:   "application/pdf",
		SizeBytes:  int64(len(data)),
		StorageKey: key,
		PageCount:  check.PageCount,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Get returns a document by id for its owner.
func (s *Service) Get(ctx context.Context, userID, documentID string) (Document, error) {
	if userID == "" || documentID == "" {
		return Document{}, errors.New("userID and documentID are required")
	}
	return s.Repo.GetByID(ctx, userID, documentID)
}

// List returns the user's documents, newest first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Document, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.Repo.ListByUser(ctx, userID, limit, offset)
}
