package http

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const (
	// UserIDHeader — заголовок с идентификатором вызывающего, его выставляет внешний шлюз.
	UserIDHeader = "X-User-ID"
	// IdempotencyKeyHeader — необязательный ключ идемпотентности изменяющих запросов.
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotentReplayHeader выставляется в ответах, взятых из кэша.
	IdempotentReplayHeader = "Idempotent-Replayed"

	finishTimeout = 5 * time.Second
)

func userID(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(UserIDHeader))
}

// accessLog пишет по строке на запрос.
func (h *Handler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := h.logger.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   status,
			"duration": time.Since(start).String(),
		})
		switch {
		case status >= http.StatusInternalServerError:
			entry.Warn("http request")
		default:
			entry.Debug("http request")
		}
	}
}

// recordingWriter дублирует тело ответа для кэша идемпотентности.
type recordingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *recordingWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// idempotent выполняет обработчик не более одного раза на Idempotency-Key.
// Без заголовка запрос обрабатывается как обычно. Повтор с тем же ключом и тем же
// телом получает сохранённый ответ, с другим телом отклоняется.
func (h *Handler) idempotent() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
		if key == "" || h.idemRepo == nil {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			badRequest(c, "failed to read request body")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		ctx := c.Request.Context()
		hash := requestHash(c.Request.Method, c.Request.URL.Path, c.Request.URL.RawQuery, userID(c), body)
		record, err := h.idemRepo.CreateProcessing(ctx, key, hash, time.Now().UTC().Add(domain.IdempotencyTTL))
		if err != nil {
			h.replay(c, err, record)
			return
		}

		recorder := &recordingWriter{ResponseWriter: c.Writer}
		c.Writer = recorder
		c.Next()

		// Клиент мог уже отключиться: ключ всё равно нужно закрыть.
		markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
		defer cancel()

		status := recorder.Status()
		entry := h.logger.WithField("idempotency_key", key)
		if retryableStatus(status) {
			if err := h.idemRepo.Release(markCtx, key); err != nil {
				entry.WithError(err).Warn("failed to release idempotency key")
			}
			return
		}
		mark := h.idemRepo.MarkDone
		if status >= http.StatusBadRequest {
			mark = h.idemRepo.MarkFailed
		}
		if err := mark(markCtx, key, recorder.body.Bytes(), status); err != nil {
			entry.WithError(err).Warn("failed to store idempotent response")
		}
	}
}

// retryableStatus отмечает временные сбои (конфликт, перегрузка, 5xx): такой ответ
// не сохраняется, и повтор с тем же ключом выполняется заново.
func retryableStatus(status int) bool {
	return status == http.StatusConflict || status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func (h *Handler) replay(c *gin.Context, createErr error, record domain.IdempotencyRecord) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "idempotency key is already used with different request payload"})
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		if record.Status == domain.IdempotencyStatusProcessing {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "request with the same idempotency key is already processing"})
			return
		}
		status := record.HTTPStatus
		if status == 0 {
			status = http.StatusOK
		}
		c.Header(IdempotentReplayHeader, "true")
		c.Data(status, "application/json; charset=utf-8", record.ResponseBody)
		c.Abort()
	default:
		h.logger.WithError(createErr).Warn("failed to create idempotency record")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to initialize idempotency request"})
	}
}

func requestHash(method, path, query, user string, body []byte) string {
	sum := sha256.New()
	for _, part := range []string{method, path, query, user} {
		sum.Write([]byte(part))
		sum.Write([]byte{':'})
	}
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}
