package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-curriculum-api/internal/models"
	appErrors "github.com/noah-isme/sma-curriculum-api/pkg/errors"
	"github.com/noah-isme/sma-curriculum-api/pkg/middleware/requestid"
)

const (
	metaContextKey    = "response_meta"
	startedContextKey = "response_started_at"
)

// Envelope represents the common response contract.
type Envelope struct {
	Data       interface{}            `json:"data,omitempty"`
	Error      *appErrors.Error       `json:"error,omitempty"`
	Pagination *models.Pagination     `json:"pagination,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
	RequestID  string                 `json:"requestId,omitempty"`
}

// MarkStart records when handling began so JSON can report processing_time_ms.
func MarkStart(c *gin.Context) {
	c.Set(startedContextKey, time.Now())
}

// SetMeta adds an entry to the meta block of the response being built for c.
func SetMeta(c *gin.Context, key string, value interface{}) {
	contextMeta(c)[key] = value
}

func contextMeta(c *gin.Context) map[string]interface{} {
	if value, ok := c.Get(metaContextKey); ok {
		if meta, ok := value.(map[string]interface{}); ok {
			return meta
		}
	}
	meta := make(map[string]interface{})
	c.Set(metaContextKey, meta)
	return meta
}

// JSON sends a success response. Meta entries set on the context are merged with the
// explicit meta argument, which wins on conflicts.
func JSON(c *gin.Context, status int, data interface{}, pagination *models.Pagination, meta ...map[string]interface{}) {
	noStore(c)
	merged := make(map[string]interface{})
	if value, ok := c.Get(metaContextKey); ok {
		if stored, ok := value.(map[string]interface{}); ok {
			for k, v := range stored {
				merged[k] = v
			}
		}
	}
	if value, ok := c.Get(startedContextKey); ok {
		if started, ok := value.(time.Time); ok {
			merged["processing_time_ms"] = time.Since(started).Milliseconds()
		}
	}
	if len(meta) > 0 {
		for k, v := range meta[0] {
			merged[k] = v
		}
	}
	envelope := Envelope{Data: data, Pagination: pagination, RequestID: requestid.Value(c)}
	if len(merged) > 0 {
		envelope.Meta = merged
	}
	c.JSON(status, envelope)
}

// Created responds with HTTP 201 Created.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data, nil)
}

// Error sends an error response converting the error to the common structure.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	if appErr == nil {
		appErr = appErrors.ErrInternal
	}
	noStore(c)
	if err != nil && appErr.Status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(appErr.Status, Envelope{Error: appErr, RequestID: requestid.Value(c)})
}

// Attachment streams a downloadable document such as an approval history export.
func Attachment(c *gin.Context, filename, contentType string, body []byte) {
	noStore(c)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, body)
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}
