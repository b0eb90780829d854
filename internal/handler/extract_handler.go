package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"contaluz/internal/domain"
	"contaluz/internal/service"
)

var allowedContentTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
}

// ExtractHandler serves the bill extraction endpoint.
type ExtractHandler struct {
	svc        *service.ExtractionService
	maxImageMB int64
}

// NewExtractHandler creates an ExtractHandler.
func NewExtractHandler(svc *service.ExtractionService, maxImageMB int64) *ExtractHandler {
	return &ExtractHandler{svc: svc, maxImageMB: maxImageMB}
}

// Extract handles POST /extract/energy.
func (h *ExtractHandler) Extract(c *gin.Context) {
	concessionaria := strings.TrimSpace(c.PostForm("concessionaria"))
	uf := strings.TrimSpace(c.PostForm("uf"))

	if concessionaria == "" {
		status, code, msg := MapDomainError(domain.ErrMissingConcessionaria)
		RespondError(c, status, code, msg)
		return
	}
	if uf == "" {
		status, code, msg := MapDomainError(domain.ErrMissingUF)
		RespondError(c, status, code, msg)
		return
	}
	if !h.svc.EngineAvailable() {
		status, code, msg := MapDomainError(domain.ErrEngineUnavailable)
		RespondError(c, status, code, msg)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "MISSING_FILE", "file is required")
		return
	}
	contentType := fileHeader.Header.Get("Content-Type")
	if !allowedContentTypes[contentType] {
		status, code, msg := MapDomainError(domain.ErrUnsupportedFileType)
		RespondError(c, status, code, msg)
		return
	}
	if fileHeader.Size > h.maxImageMB*1024*1024 {
		status, code, msg := MapDomainError(domain.ErrFileTooLarge)
		RespondError(c, status, code, msg)
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "UNREADABLE_FILE", "could not open uploaded file")
		return
	}
	defer func() { _ = f.Close() }()
	raw, err := io.ReadAll(f)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "UNREADABLE_FILE", "could not read uploaded file")
		return
	}

	out, err := h.svc.Extract(c.Request.Context(), raw, concessionaria, uf)
	if err != nil {
		status, code, msg := MapDomainError(err)
		RespondError(c, status, code, msg)
		return
	}
	c.JSON(http.StatusOK, out)
}
