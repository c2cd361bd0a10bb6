package documents

import (
	"errors"
	"io"
	"net/http"

	"github.com/docker/go-units"
	"github.com/gin-gonic/gin"

	"document-backend/internal/extract"
	"document-backend/internal/shared/server/middleware"
	"document-backend/internal/shared/server/respond"
)

const (
	defaultMaxUploadBytes = 5 * units.MiB
	// multipartOverhead leaves room for boundaries and part headers around the file.
	multipartOverhead = 1 * units.MiB
)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc            *Service
	MaxUploadBytes int64
}

// NewHandler constructs a Handler. A non-positive limit selects the 5MiB default.
func NewHandler(svc *Service, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &Handler{Svc: svc, MaxUploadBytes: maxUploadBytes}
}

// RegisterRoutes attaches document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents/upload", h.upload)
	rg.POST("/documents/:id/analyze", h.analyze)
	rg.GET("/documents/:id", h.get)
}

func (h *Handler) upload(c *gin.Context) {
	limit := h.MaxUploadBytes + multipartOverhead
	if c.Request.ContentLength > limit {
		h.reject(c, http.StatusRequestEntityTooLarge, &ValidationError{Code: ErrorCodeFileTooLarge, Message: h.tooLargeMessage()})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.reject(c, http.StatusRequestEntityTooLarge, &ValidationError{Code: ErrorCodeFileTooLarge, Message: h.tooLargeMessage()})
			return
		}
		h.reject(c, http.StatusBadRequest, &ValidationError{Code: ErrorCodeValidation, Message: "file is required"})
		return
	}
	if fileHeader.Size > h.MaxUploadBytes {
		h.reject(c, http.StatusRequestEntityTooLarge, &ValidationError{Code: ErrorCodeFileTooLarge, Message: h.tooLargeMessage()})
		return
	}

	mimeType := extract.NormalizeMimeType(fileHeader.Header.Get("Content-Type"))
	if mimeType != extract.MimePDF && mimeType != extract.MimeDOCX {
		h.reject(c, http.StatusUnsupportedMediaType, &ValidationError{
			Code:    ErrorCodeUnsupportedType,
			Message: "only PDF and DOCX files are accepted",
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.reject(c, http.StatusBadRequest, &ValidationError{Code: ErrorCodeValidation, Message: "unable to read file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.reject(c, http.StatusBadRequest, &ValidationError{Code: ErrorCodeValidation, Message: "unable to read file"})
		return
	}

	doc, err := h.Svc.Ingest(c.Request.Context(), IngestInput{
		FileName: fileHeader.Filename,
		MimeType: mimeType,
		Data:     data,
		Size:     fileHeader.Size,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.Set(middleware.DocumentIDKey, doc.ID)
	respond.JSON(c, http.StatusCreated, UploadResponse{ID: doc.ID})
}

func (h *Handler) analyze(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.DocumentIDKey, id)

	if _, err := h.Svc.Analyze(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	respond.Empty(c, http.StatusOK)
}

func (h *Handler) get(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.DocumentIDKey, id)

	doc, err := h.Svc.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, toResponse(doc))
}

func (h *Handler) reject(c *gin.Context, status int, verr *ValidationError) {
	respond.Error(c, status, verr.Code, verr.Message, nil)
}

func (h *Handler) tooLargeMessage() string {
	return "file exceeds the " + units.BytesSize(float64(h.MaxUploadBytes)) + " upload limit"
}

// writeError maps service errors onto HTTP responses.
func writeError(c *gin.Context, err error) {
	var (
		verr       *ValidationError
		extractErr *ExtractionError
		storeErr   *StorageError
		svcErr     *ServiceError
		parseErr   *AnalysisParseError
	)
	switch {
	case errors.As(err, &verr):
		respond.Error(c, http.StatusBadRequest, verr.Code, verr.Message, nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, ErrorCodeNotFound, "document not found", nil)
	case errors.Is(err, ErrAnalysisInProgress):
		respond.Error(c, http.StatusConflict, ErrorCodeConflict, err.Error(), nil)
	case errors.As(err, &extractErr):
		respond.Error(c, http.StatusUnprocessableEntity, ErrorCodeExtraction, "unable to extract text from file", nil)
	case errors.As(err, &storeErr):
		respond.Error(c, http.StatusBadGateway, ErrorCodeStorage, "failed to store file", nil)
	case errors.As(err, &svcErr):
		respond.Error(c, http.StatusBadGateway, ErrorCodeLLM, "text generation failed", nil)
	case errors.As(err, &parseErr):
		respond.Error(c, http.StatusBadGateway, ErrorCodeLLMParse, "text generation returned an unreadable response", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "internal error", nil)
	}
}
