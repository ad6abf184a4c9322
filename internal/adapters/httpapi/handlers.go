package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mikey/llm-phish-detector/internal/core"
	"github.com/mikey/llm-phish-detector/internal/extractor"
	"go.uber.org/zap"
)

// formFileField is the multipart field holding an uploaded .eml file
const formFileField = "file"

// Handler serves the extraction and analysis endpoints
type Handler struct {
	extractor core.RecordExtractor
	analyzer  Analyzer
	maxBytes  int64
	logger    *zap.Logger
}

// ExtractResponse is returned by POST /api/v1/extract
type ExtractResponse struct {
	Email *core.EmailRecord `json:"email"`
}

// AnalyzeResponse is returned by POST /api/v1/analyze
type AnalyzeResponse struct {
	Email        *core.EmailRecord    `json:"email"`
	Analysis     *core.AnalysisResult `json:"analysis"`
	Structured   bool                 `json:"structured"`
	IsPhishing   bool                 `json:"is_phishing"`
	RiskLevel    core.RiskLevel       `json:"risk_level,omitempty"`
	Source       core.ResultSource    `json:"source"`
	ModelUsed    string               `json:"model_used"`
	ProcessingID string               `json:"processing_id"`
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewHandler creates a handler. analyzer may be nil, in which case
// /api/v1/analyze answers 503.
func NewHandler(extractor core.RecordExtractor, analyzer Analyzer, maxBytes int64, logger *zap.Logger) *Handler {
	return &Handler{
		extractor: extractor,
		analyzer:  analyzer,
		maxBytes:  maxBytes,
		logger:    logger,
	}
}

// Register mounts the routes on router
func (h *Handler) Register(router gin.IRouter) {
	router.GET("/health", h.Health)

	v1 := router.Group("/api/v1")
	v1.POST("/extract", h.Extract)
	v1.POST("/analyze", h.Analyze)
}

// Health reports liveness
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Extract returns the record extracted from the posted message
func (h *Handler) Extract(c *gin.Context) {
	record, ok := h.extract(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ExtractResponse{Email: record})
}

// Analyze extracts the posted message and scores it
func (h *Handler) Analyze(c *gin.Context) {
	if h.analyzer == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "analysis is not configured"})
		return
	}

	record, ok := h.extract(c)
	if !ok {
		return
	}

	result, err := h.analyzer.Analyze(c.Request.Context(), record)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error()})
		return
	}

	resp := AnalyzeResponse{
		Email:        record,
		Analysis:     result,
		Structured:   result.IsStructured(),
		IsPhishing:   h.analyzer.IsPhishing(result),
		Source:       result.Source,
		ModelUsed:    result.ModelUsed,
		ProcessingID: result.ProcessingID,
	}
	if result.IsStructured() {
		resp.RiskLevel = core.RiskLevelForScore(result.Verdict.Score)
	}
	c.JSON(http.StatusOK, resp)
}

// extract reads the message from the request and writes the error reply
// itself when it fails
func (h *Handler) extract(c *gin.Context) (*core.EmailRecord, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)

	src, err := h.messageSource(c)
	if err != nil {
		h.abort(c, err)
		return nil, false
	}
	defer src.Close()

	record, err := h.extractor.Extract(src)
	if err != nil {
		h.abort(c, err)
		return nil, false
	}
	return record, true
}

// messageSource returns the uploaded file for multipart requests and the
// raw body otherwise
func (h *Handler) messageSource(c *gin.Context) (io.ReadCloser, error) {
	if !strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		return c.Request.Body, nil
	}

	header, err := c.FormFile(formFileField)
	if err != nil {
		return nil, fmt.Errorf("%w: missing form field %q: %w", extractor.ErrRead, formFileField, err)
	}
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", extractor.ErrRead, err)
	}
	return file, nil
}

func (h *Handler) abort(c *gin.Context, err error) {
	_ = c.Error(err)

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "message too large"})
	case errors.Is(err, extractor.ErrParse):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
	case errors.Is(err, extractor.ErrRead):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	default:
		h.logger.Error("Unexpected extraction failure", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
