package http

import (
	"mime"
	"net/http"
	"strconv"
	"time"

	"custody/internal/usecase"

	"github.com/gin-gonic/gin"
)

// responseStream adapts a gin response to usecase.StreamWriter.
type responseStream struct {
	c       *gin.Context
	rc      *http.ResponseController
	timeout time.Duration
	begun   bool
}

func newResponseStream(c *gin.Context, timeout time.Duration) *responseStream {
	return &responseStream{
		c:       c,
		rc:      http.NewResponseController(c.Writer),
		timeout: timeout,
	}
}

func (w *responseStream) Begin(header usecase.StreamHeader) {
	w.begun = true
	h := w.c.Writer.Header()
	contentType := header.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.FormatInt(header.Size, 10))
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": header.Filename}))
	h.Set("X-Content-SHA256", header.FileHash)
	h.Set("Cache-Control", "no-store")
	if w.timeout > 0 {
		// Not every writer supports deadlines; the vault's own transfer
		// timeout still applies.
		_ = w.rc.SetWriteDeadline(time.Now().Add(w.timeout))
	}
	w.c.Status(http.StatusOK)
	w.c.Writer.WriteHeaderNow()
}

func (w *responseStream) Write(p []byte) (int, error) {
	n, err := w.c.Writer.Write(p)
	if err != nil {
		return n, err
	}
	_ = w.rc.Flush()
	return n, nil
}

func (w *responseStream) started() bool {
	return w.begun
}
