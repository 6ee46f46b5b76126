package http

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"custody/internal/domain"
	"custody/internal/usecase"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type uploadResponse struct {
	Document domain.DocumentSummary  `json:"document"`
	States   []usecase.OperationState `json:"states"`
}

type deleteResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

type securityEventsResponse struct {
	ActorID    string `json:"actor_id,omitempty"`
	ActionType string `json:"action_type,omitempty"`
	Status     string `json:"status,omitempty"`
	Since      string `json:"since,omitempty"`
	Count      int64  `json:"count"`
}

type verifyWindowRequest struct {
	From         string `json:"from"`
	To           string `json:"to"`
	ExpectedRoot string `json:"expected_root"`
}

func (s *Server) handleUpload(c *gin.Context) {
	req, ok := s.readUpload(c)
	if !ok {
		return
	}
	result, err := s.vault.Upload(c.Request.Context(), req)
	if err != nil {
		writeDocumentError(c, err)
		return
	}
	c.JSON(http.StatusCreated, uploadResponse{Document: result.Document, States: result.Trace.States})
}

func (s *Server) handleUploadVersion(c *gin.Context) {
	req, ok := s.readUpload(c)
	if !ok {
		return
	}
	result, err := s.vault.UploadVersion(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeDocumentError(c, err)
		return
	}
	c.JSON(http.StatusCreated, uploadResponse{Document: result.Document, States: result.Trace.States})
}

// readUpload reads the multipart "file" part. The part is read up to one byte
// past the configured maximum so the vault rejects and audits oversize files.
func (s *Server) readUpload(c *gin.Context) (usecase.UploadRequest, bool) {
	if s.vault == nil {
		writeError(c, domain.ErrNotFound)
		return usecase.UploadRequest{}, false
	}
	limit := s.cfg.MaxUploadBytes
	if limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)
	}
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorCode(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "upload too large")
			return usecase.UploadRequest{}, false
		}
		writeErrorCode(c, http.StatusBadRequest, "INVALID_INPUT", "multipart file field required")
		return usecase.UploadRequest{}, false
	}
	content, err := readPart(header, limit)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_INPUT", "unreadable file")
		return usecase.UploadRequest{}, false
	}
	actor, meta := requestActor(c)
	return usecase.UploadRequest{
		Content:        content,
		Filename:       header.Filename,
		ContentType:    header.Header.Get("Content-Type"),
		Classification: domain.Level(c.PostForm("classification")),
		Actor:          actor,
		Meta:           meta,
	}, true
}

func readPart(header *multipart.FileHeader, limit int64) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	var reader io.Reader = file
	if limit > 0 {
		reader = io.LimitReader(file, limit+1)
	}
	return io.ReadAll(reader)
}

func (s *Server) handleListDocuments(c *gin.Context) {
	if s.vault == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	page, ok := parsePage(c)
	if !ok {
		return
	}
	actor, meta := requestActor(c)
	out, err := s.vault.List(c.Request.Context(), domain.DocumentQuery{
		Search:     c.Query("q"),
		UploadedBy: c.Query("uploaded_by"),
		FileHash:   strings.ToLower(c.Query("file_hash")),
		Page:       page,
	}, actor, meta)
	if err != nil {
		writeDocumentError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleViewDocument(c *gin.Context) {
	if s.vault == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	actor, meta := requestActor(c)
	summary, err := s.vault.View(c.Request.Context(), c.Param("id"), actor, meta)
	if err != nil {
		writeDocumentError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleListVersions(c *gin.Context) {
	if s.vault == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	actor, meta := requestActor(c)
	versions, err := s.vault.ListVersions(c.Request.Context(), c.Param("id"), actor, meta)
	if err != nil {
		writeDocumentError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": versions})
}

// handleDownload streams the verified plaintext. Once the first byte is out
// the status can no longer change; a broken transfer is logged and audited by
// the vault.
func (s *Server) handleDownload(c *gin.Context) {
	if s.vault == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	actor, meta := requestActor(c)
	stream := newResponseStream(c, s.cfg.TransferTimeout())
	_, err := s.vault.DownloadStream(c.Request.Context(), c.Param("id"), actor, meta, stream)
	if err == nil {
		return
	}
	if stream.started() {
		s.logger.Warn("download aborted after headers were sent",
			zap.String("document_id", c.Param("id")),
			zap.Error(err),
		)
		c.Abort()
		return
	}
	writeDocumentError(c, err)
}

func (s *Server) handleDeleteDocument(c *gin.Context) {
	if s.vault == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	actor, meta := requestActor(c)
	id := c.Param("id")
	if err := s.vault.Delete(c.Request.Context(), id, actor, meta); err != nil {
		writeDocumentError(c, err)
		return
	}
	c.JSON(http.StatusOK, deleteResponse{ID: id, Deleted: true})
}

func (s *Server) handleVerifyDocument(c *gin.Context) {
	if s.vault == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	actor, meta := requestActor(c)
	report, err := s.vault.VerifyDocument(c.Request.Context(), c.Param("id"), actor, meta)
	if err != nil {
		if _, ok := isAuthz(err); ok {
			writeAuthzError(c, err)
			return
		}
		writeDocumentError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleSearchAudit(c *gin.Context) {
	if s.queries == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	page, ok := parsePage(c)
	if !ok {
		return
	}
	from, to, ok := parseWindow(c, c.Query("from"), c.Query("to"))
	if !ok {
		return
	}
	actor, meta := requestActor(c)
	out, err := s.queries.Search(c.Request.Context(), actor, meta, domain.AuditQuery{
		ActorID:    c.Query("actor_id"),
		ActionType: domain.AuditActionType(strings.ToUpper(c.Query("action_type"))),
		From:       from,
		To:         to,
		Page:       page,
	})
	if err != nil {
		writeAuditError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetAuditRecord(c *gin.Context) {
	if s.queries == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	actor, meta := requestActor(c)
	record, err := s.queries.Get(c.Request.Context(), actor, meta, c.Param("id"))
	if err != nil {
		writeAuditError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleVerifyAuditRecord(c *gin.Context) {
	if s.queries == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	actor, meta := requestActor(c)
	out, err := s.queries.VerifyRecord(c.Request.Context(), actor, meta, c.Param("id"))
	if err != nil {
		writeAuditError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleVerifyAuditWindow(c *gin.Context) {
	if s.queries == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req verifyWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	from, to, ok := parseWindow(c, req.From, req.To)
	if !ok {
		return
	}
	actor, meta := requestActor(c)
	out, err := s.queries.VerifyWindow(c.Request.Context(), actor, meta, from, to)
	if err != nil {
		writeAuditError(c, err)
		return
	}
	if req.ExpectedRoot != "" {
		out.CompareRoot(req.ExpectedRoot)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleChainOfCustody(c *gin.Context) {
	if s.queries == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	actor, meta := requestActor(c)
	resourceType := domain.AuditResourceType(strings.ToUpper(c.Param("resource_type")))
	records, err := s.queries.ChainOfCustody(c.Request.Context(), actor, meta, resourceType, c.Param("resource_id"))
	if err != nil {
		writeAuditError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": records})
}

func (s *Server) handleSecurityEvents(c *gin.Context) {
	if s.queries == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	query := domain.SecurityEventQuery{
		ActorID:    c.Query("actor_id"),
		ActionType: domain.AuditActionType(strings.ToUpper(c.Query("action_type"))),
		Status:     domain.AuditStatus(strings.ToUpper(c.Query("status"))),
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_INPUT", "invalid since")
			return
		}
		query.Since = since.UTC()
	}
	actor, meta := requestActor(c)
	count, err := s.queries.CountSecurityEvents(c.Request.Context(), actor, meta, query)
	if err != nil {
		writeAuditError(c, err)
		return
	}
	out := securityEventsResponse{
		ActorID:    query.ActorID,
		ActionType: string(query.ActionType),
		Status:     string(query.Status),
		Count:      count,
	}
	if !query.Since.IsZero() {
		out.Since = query.Since.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleNoRoute(c *gin.Context) {
	writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
}

func parsePage(c *gin.Context) (domain.Page, bool) {
	var page domain.Page
	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > domain.MaxPageNumber {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_INPUT", "invalid page")
			return domain.Page{}, false
		}
		page.Number = n
	}
	if raw := c.Query("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_INPUT", "invalid page_size")
			return domain.Page{}, false
		}
		page.Size = n
	}
	return page.Normalize(), true
}

func parseWindow(c *gin.Context, rawFrom, rawTo string) (time.Time, time.Time, bool) {
	var from, to time.Time
	if rawFrom != "" {
		parsed, err := time.Parse(time.RFC3339, rawFrom)
		if err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_INPUT", "invalid from")
			return time.Time{}, time.Time{}, false
		}
		from = parsed.UTC()
	}
	if rawTo != "" {
		parsed, err := time.Parse(time.RFC3339, rawTo)
		if err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_INPUT", "invalid to")
			return time.Time{}, time.Time{}, false
		}
		to = parsed.UTC()
	}
	return from, to, true
}
