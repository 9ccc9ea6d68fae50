package handler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"meddocs/internal/model"
	"meddocs/internal/service"
	"meddocs/internal/storage"
)

// presignExpiry bounds how long a minted download link stays valid.
const presignExpiry = 15 * time.Minute

// documentResponse is the client-facing record shape. The filename field
// carries the user's original name; the generated storage name stays
// internal.
type documentResponse struct {
	ID        int64     `json:"id"`
	Filename  string    `json:"filename"`
	Filesize  int64     `json:"filesize"`
	CreatedAt time.Time `json:"created_at"`
}

func toDocumentResponse(d model.Document) documentResponse {
	return documentResponse{
		ID:        d.ID,
		Filename:  d.OriginalName,
		Filesize:  d.Filesize,
		CreatedAt: d.CreatedAt,
	}
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Handlers stay thin: parse, delegate to the service, translate errors.
func RegisterRoutes(app *fiber.App, db *sql.DB, docSvc service.DocumentService) {
	app.Get("/healthz", LivenessProbe())

	api := app.Group("/api")
	api.Get("/health", HealthCheck(db))
	api.Get("/documents", ListDocuments(docSvc))
	api.Post("/documents", UploadDocument(docSvc))
	api.Get("/documents/:id", DownloadDocument(docSvc))
	api.Get("/documents/:id/url", DocumentURL(docSvc))
	api.Delete("/documents/:id", DeleteDocument(docSvc))
}

// HealthCheck reports service health including DB connectivity.
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":    "OK",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// LivenessProbe is a minimal probe that never touches dependencies.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// ListDocuments returns all document metadata, most recent first.
func ListDocuments(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		docs, err := docSvc.List(c.UserContext())
		if err != nil {
			return serviceError(c, err)
		}
		out := make([]documentResponse, 0, len(docs))
		for _, d := range docs {
			out = append(out, toDocumentResponse(d))
		}
		return c.JSON(fiber.Map{"documents": out})
	}
}

// UploadDocument accepts a multipart PDF upload (field name: document).
func UploadDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("document")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "document file is required")
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		doc, err := docSvc.Upload(c.UserContext(), f, fh.Filename, fh.Size)
		if err != nil {
			return serviceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"message":  "document uploaded successfully",
			"document": toDocumentResponse(*doc),
		})
	}
}

// DownloadDocument streams a document's content with its original filename.
func DownloadDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		rc, doc, err := docSvc.Download(c.UserContext(), id)
		if err != nil {
			return serviceError(c, err)
		}
		c.Set(fiber.HeaderContentType, "application/pdf")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename=%q`, doc.OriginalName))
		// Filesize is authoritative from upload time; the blob is not
		// re-measured on read.
		return c.SendStream(rc, int(doc.Filesize))
	}
}

// DocumentURL mints a presigned download link when the blob-store backend
// supports it.
func DocumentURL(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		u, err := docSvc.DownloadURL(c.UserContext(), id, presignExpiry)
		if err != nil {
			if errors.Is(err, storage.ErrPresignNotSupported) {
				return writeError(c, fiber.StatusNotImplemented, "NOT_SUPPORTED", "download links are not supported by this storage backend")
			}
			return serviceError(c, err)
		}
		return c.JSON(fiber.Map{"url": u})
	}
}

// DeleteDocument removes a document's blob and metadata.
func DeleteDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := docSvc.Delete(c.UserContext(), id); err != nil {
			return serviceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func parseID(c *fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// serviceError translates service-level errors into the standard envelope.
// Validation failures carry their actionable message; everything else stays
// generic so internals never leak.
func serviceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrFileTooLarge):
		return writeError(c, fiber.StatusBadRequest, "FILE_TOO_LARGE", err.Error())
	case service.IsValidationError(err):
		return writeError(c, fiber.StatusBadRequest, "INVALID_FILE", err.Error())
	case errors.Is(err, service.ErrNotFound):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "document not found")
	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
