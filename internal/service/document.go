package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"meddocs/internal/model"
	"meddocs/internal/repository"
	"meddocs/internal/storage"
)

// pdfSignature is the byte prefix every stored document must carry,
// independent of the claimed filename.
const pdfSignature = "%PDF-"

var (
	ErrInvalidExtension = errors.New("only files with a .pdf extension are allowed")
	ErrInvalidSignature = errors.New("file content is not a PDF")
	ErrEmptyFile        = errors.New("empty file not allowed")
	ErrFileTooLarge     = errors.New("file size exceeds the maximum allowed")
	ErrNotFound         = errors.New("document not found")
	ErrReaderNil        = errors.New("reader is nil")
)

// IsValidationError reports whether err is a client-caused upload rejection,
// as opposed to a not-found or an I/O failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidExtension) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrEmptyFile) ||
		errors.Is(err, ErrFileTooLarge)
}

// DocumentService is the repository facade: it sequences the blob store and
// the metadata store so each operation appears atomic to the client, and it
// owns the fallback behavior when the two stores disagree. Neither store is
// aware of the other; partial-failure states (orphaned blob, dangling row)
// are documented outcomes here, not hidden behind a transaction that does
// not exist.
type DocumentService interface {
	// Upload validates the content (extension, PDF signature, size cap),
	// writes the blob under a generated collision-free name, then inserts
	// the metadata row. The stored record with its server-assigned ID is
	// returned. Filesize is the byte count actually written, not the
	// client-declared size.
	Upload(ctx context.Context, r io.Reader, originalName string, declaredSize int64) (*model.Document, error)

	// List returns all documents, most recently created first.
	List(ctx context.Context) ([]model.Document, error)

	// Get returns a document's metadata by ID.
	Get(ctx context.Context, id int64) (*model.Document, error)

	// Download returns the blob content as a stream plus the metadata needed
	// for response headers. A row whose blob is missing yields ErrNotFound.
	Download(ctx context.Context, id int64) (io.ReadCloser, *model.Document, error)

	// DownloadURL returns a presigned GET URL when the blob-store backend
	// supports it, storage.ErrPresignNotSupported otherwise.
	DownloadURL(ctx context.Context, id int64, expiry time.Duration) (string, error)

	// Delete removes the blob (best-effort) and then the metadata row.
	// An unknown ID yields ErrNotFound with no side effects.
	Delete(ctx context.Context, id int64) error
}

type documentService struct {
	store    storage.Storage
	repo     repository.DocumentRepository
	maxBytes int64
}

// NewDocumentService constructs a new DocumentService. maxBytes caps upload
// content length; non-positive values fall back to 10 MiB.
func NewDocumentService(store storage.Storage, repo repository.DocumentRepository, maxBytes int64) DocumentService {
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &documentService{store: store, repo: repo, maxBytes: maxBytes}
}

func (s *documentService) Upload(ctx context.Context, r io.Reader, originalName string, declaredSize int64) (*model.Document, error) {
	if r == nil {
		return nil, ErrReaderNil
	}
	if !strings.HasSuffix(strings.ToLower(originalName), ".pdf") {
		return nil, ErrInvalidExtension
	}

	// Sniff the magic number before anything is written. Extension and
	// signature failures take precedence over the size message since they
	// are the actionable ones.
	header := make([]byte, len(pdfSignature))
	n, err := io.ReadFull(r, header)
	switch {
	case errors.Is(err, io.EOF) && n == 0:
		return nil, ErrEmptyFile
	case errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF):
		return nil, ErrInvalidSignature
	case err != nil:
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if string(header) != pdfSignature {
		return nil, ErrInvalidSignature
	}

	if declaredSize > s.maxBytes {
		return nil, ErrFileTooLarge
	}

	// Storage name is a fresh token plus the canonical extension; the
	// user-supplied name never reaches the blob store as a key.
	genName := uuid.New().String() + ".pdf"

	// The write path is capped at maxBytes+1 so a body longer than declared
	// can never buffer or persist unboundedly; the single overflow byte is
	// how the cap violation is detected.
	body := io.MultiReader(
		bytes.NewReader(header),
		io.LimitReader(r, s.maxBytes-int64(len(header))+1),
	)

	putSize := declaredSize
	if putSize <= 0 {
		putSize = -1
	}
	info, err := s.store.Put(ctx, genName, body, storage.PutObjectOptions{
		Size:        putSize,
		ContentType: "application/pdf",
		Metadata: map[string]string{
			"original-filename": originalName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("upload to storage: %w", err)
	}

	if info.Size > s.maxBytes {
		// The capped write overflowed: remove it so a rejected upload
		// leaves nothing behind in either store.
		_ = s.store.Delete(ctx, genName)
		return nil, ErrFileTooLarge
	}

	doc := &model.Document{
		Filename:     genName,
		OriginalName: originalName,
		Filepath:     info.Key,
		Filesize:     info.Size,
		CreatedAt:    time.Now().UTC(),
	}
	stored, err := s.repo.Create(ctx, doc)
	if err != nil {
		// Compensating delete so the insert failure does not strand the
		// blob. If the delete fails too, the orphan stays and both errors
		// are reported.
		if delErr := s.store.Delete(ctx, genName); delErr != nil && !errors.Is(delErr, storage.ErrNotExist) {
			return nil, fmt.Errorf("db save failed: %v; rollback delete failed: %v", err, delErr)
		}
		return nil, fmt.Errorf("db save failed: %w", err)
	}
	return stored, nil
}

func (s *documentService) List(ctx context.Context) ([]model.Document, error) {
	return s.repo.List(ctx)
}

func (s *documentService) Get(ctx context.Context, id int64) (*model.Document, error) {
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

func (s *documentService) Download(ctx context.Context, id int64) (io.ReadCloser, *model.Document, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, _, err := s.store.Get(ctx, doc.Filepath)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			// Dangling record: the row outlived its blob (interrupted
			// delete, or a concurrent delete won the race).
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("open blob: %w", err)
	}
	return rc, doc, nil
}

func (s *documentService) DownloadURL(ctx context.Context, id int64, expiry time.Duration) (string, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return s.store.PresignGet(ctx, doc.Filepath, expiry)
}

func (s *documentService) Delete(ctx context.Context, id int64) error {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	// Blob removal is best-effort: a missing blob, or any blob-store
	// failure, must not block deletion of the metadata row. The worst
	// outcome is an orphaned blob, which is the accepted cost.
	_ = s.store.Delete(ctx, doc.Filepath)
	if err := s.repo.Delete(ctx, id); err != nil {
		// The blob may already be gone; the row now dangles and Download
		// will surface it as not-found.
		return fmt.Errorf("db delete failed: %w", err)
	}
	return nil
}
