package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"sealdrop/internal/server/database"
	"sealdrop/internal/server/service"

	"github.com/labstack/echo/v4"
)

// Handler contains the HTTP handlers for the sealdrop API.
type Handler struct {
	ledger  *service.Ledger
	records database.RecordStore
}

// NewHandler creates a new handler with the given dependencies.
func NewHandler(ledger *service.Ledger, records database.RecordStore) *Handler {
	return &Handler{ledger: ledger, records: records}
}

// HandleUpload handles POST /api/upload.
// Accepts a multipart form with a "file" field (ciphertext from the client's
// perspective, opaque bytes from ours) and optional "max_downloads",
// "expiry_hours" and "mime_hint" fields. Out-of-range limits are clamped,
// never rejected.
func (h *Handler) HandleUpload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "file is required (use form field 'file')",
		})
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to read uploaded file",
		})
	}
	defer src.Close()

	maxDownloads, _ := strconv.Atoi(c.FormValue("max_downloads"))
	expiryHours, _ := strconv.Atoi(c.FormValue("expiry_hours"))

	mimeHint := c.FormValue("mime_hint")
	if mimeHint == "" {
		mimeHint = fileHeader.Header.Get("Content-Type")
	}

	result, err := h.ledger.Create(c.Request().Context(), &service.CreateRequest{
		DisplayName:  fileHeader.Filename,
		MimeHint:     mimeHint,
		Data:         src,
		MaxDownloads: maxDownloads,
		ExpiryHours:  expiryHours,
	})
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusCreated, result)
}

// HandleDownload handles GET /d/:id.
// Streams the stored envelope, consuming one unit of the download allowance.
func (h *Handler) HandleDownload(c echo.Context) error {
	id := c.Param("id")

	result, err := h.ledger.Fetch(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(c, err)
	}
	defer result.Blob.Close()

	res := c.Response()
	res.Header().Set(echo.HeaderContentLength, strconv.FormatInt(result.ByteSize, 10))
	res.Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", result.DisplayName))
	res.Header().Set("X-Remaining-Downloads", strconv.Itoa(result.Remaining))
	res.Header().Set("X-Content-Type-Options", "nosniff")

	return c.Stream(http.StatusOK, result.MimeHint, result.Blob)
}

// HandleInfo handles GET /api/info/:id.
// Returns share metadata without consuming a download.
func (h *Handler) HandleInfo(c echo.Context) error {
	info, err := h.ledger.Info(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, info)
}

// HandleDelete handles DELETE /api/shares/:id.
// Forces the terminal transition; idempotent.
func (h *Handler) HandleDelete(c echo.Context) error {
	deleted, err := h.ledger.Delete(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"deleted": deleted})
}

// HandleStats handles GET /api/stats.
// Read-only aggregate counters for operational visibility.
func (h *Handler) HandleStats(c echo.Context) error {
	stats, err := h.ledger.Stats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to retrieve stats",
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"active_shares":      stats.ActiveShares,
		"deleted_shares":     stats.DeletedShares,
		"total_shares":       stats.TotalShares,
		"active_bytes":       stats.ActiveBytes,
		"active_bytes_human": humanizeBytes(stats.ActiveBytes),
		"last_upload_at":     stats.LastUploadAt,
	})
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	storeStatus := "connected"

	if err := h.records.Ping(c.Request().Context()); err != nil {
		status = "degraded"
		storeStatus = fmt.Sprintf("error: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":       status,
		"record_store": storeStatus,
	})
}

// mapServiceError translates service-layer errors into HTTP responses.
// Expired and limit-reached share the 410 status but stay distinguishable
// through the reason field, so clients can explain why the file is gone.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "share not found"})
	case errors.Is(err, service.ErrExpired):
		return c.JSON(http.StatusGone, echo.Map{
			"error":  "share has expired",
			"reason": "expired",
		})
	case errors.Is(err, service.ErrLimitReached):
		return c.JSON(http.StatusGone, echo.Map{
			"error":  "share download limit reached",
			"reason": "download_limit_reached",
		})
	case errors.Is(err, service.ErrFileTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{
			"error": "file exceeds maximum allowed size",
		})
	case errors.Is(err, service.ErrEmptyUpload):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "upload contains no data"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}

// humanizeBytes formats a byte count into a human-readable string.
func humanizeBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
