package api

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"commerce-service/internal/models"
	"commerce-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	IdempotencyKeyHeader     = "Idempotency-Key"
	IdempotentReplayedHeader = "Idempotent-Replayed"
	defaultProcessingTTL     = 5 * time.Minute
	defaultProcessedTTL      = 24 * time.Hour
	idempotencyStoreTimeout  = 2 * time.Second
)

// IdempotencyStore holds idempotency records. Implemented by redisclient.Client.
type IdempotencyStore interface {
	AcquireIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
	CompleteIdempotencyKey(ctx context.Context, key string, record *models.IdempotencyRecord, ttl time.Duration) (bool, error)
	ReleaseIdempotencyKey(ctx context.Context, key string) error
	GetIdempotencyRecord(ctx context.Context, key string) (*models.IdempotencyRecord, error)
}

// IdempotencyOptions configures the idempotency guard
type IdempotencyOptions struct {
	ProcessingTTL time.Duration
	ProcessedTTL  time.Duration
	// Replay returns the stored response for a completed key instead of a conflict
	Replay bool
}

// bodyCaptureWriter keeps a copy of the response body for the idempotency record
type bodyCaptureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyCaptureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyCaptureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// IdempotencyMiddleware guards a route with the Idempotency-Key header.
// Requests without the header pass through untouched.
func IdempotencyMiddleware(store IdempotencyStore, opts IdempotencyOptions) gin.HandlerFunc {
	if opts.ProcessingTTL <= 0 {
		opts.ProcessingTTL = defaultProcessingTTL
	}
	if opts.ProcessedTTL <= 0 {
		opts.ProcessedTTL = defaultProcessedTTL
	}
	logger := util.GetLogger()

	return func(c *gin.Context) {
		clientKey := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
		if clientKey == "" {
			c.Next()
			return
		}
		key := c.Request.Method + ":" + c.Request.URL.Path + ":" + clientKey

		// bookkeeping outlives a client disconnect
		storeCtx := context.WithoutCancel(c.Request.Context())

		acquired, err := withTimeout(storeCtx, func(ctx context.Context) (bool, error) {
			return store.AcquireIdempotencyKey(ctx, key, opts.ProcessingTTL)
		})
		if err != nil {
			util.IdempotencyOutcomesTotal.WithLabelValues("unavailable").Inc()
			logger.Error("Idempotency store unavailable", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorResponse{
				Error: "Idempotency store unavailable",
				Code:  "idempotency_unavailable",
			})
			return
		}

		if !acquired {
			if opts.Replay && replay(storeCtx, c, store, key) {
				util.IdempotencyOutcomesTotal.WithLabelValues("replayed").Inc()
				return
			}
			util.IdempotencyOutcomesTotal.WithLabelValues("duplicate").Inc()
			logger.Info("Duplicate request rejected", zap.String("idempotency_key", clientKey))
			status, code := statusForError(models.ErrDuplicateRequest)
			c.AbortWithStatusJSON(status, errorResponse{
				Error: "Duplicate request detected",
				Code:  code,
			})
			return
		}

		writer := &bodyCaptureWriter{ResponseWriter: c.Writer}
		c.Writer = writer

		defer func() {
			if r := recover(); r != nil {
				release(storeCtx, store, key)
				panic(r)
			}
		}()

		c.Next()

		status := writer.Status()
		if status < http.StatusOK || status >= http.StatusBadRequest {
			util.IdempotencyOutcomesTotal.WithLabelValues("released").Inc()
			release(storeCtx, store, key)
			return
		}

		record := &models.IdempotencyRecord{
			State:       models.IdempotencyProcessed,
			StatusCode:  status,
			ContentType: writer.Header().Get("Content-Type"),
			Body:        writer.body.Bytes(),
		}
		swapped, err := withTimeout(storeCtx, func(ctx context.Context) (bool, error) {
			return store.CompleteIdempotencyKey(ctx, key, record, opts.ProcessedTTL)
		})
		if err != nil {
			logger.Error("Failed to complete idempotency key", zap.String("idempotency_key", clientKey), zap.Error(err))
			return
		}
		if !swapped {
			logger.Warn("Idempotency key expired before completion", zap.String("idempotency_key", clientKey))
			return
		}
		util.IdempotencyOutcomesTotal.WithLabelValues("processed").Inc()
	}
}

// replay writes the stored response for a completed key. Reports false while the key is still PROCESSING.
func replay(ctx context.Context, c *gin.Context, store IdempotencyStore, key string) bool {
	ctx, cancel := context.WithTimeout(ctx, idempotencyStoreTimeout)
	defer cancel()

	record, err := store.GetIdempotencyRecord(ctx, key)
	if err != nil {
		util.GetLogger().Warn("Failed to load idempotency record", zap.Error(err))
		return false
	}
	if record == nil || record.State != models.IdempotencyProcessed {
		return false
	}

	c.Header(IdempotentReplayedHeader, "true")
	c.Data(record.StatusCode, record.ContentType, record.Body)
	c.Abort()
	return true
}

func release(ctx context.Context, store IdempotencyStore, key string) {
	ctx, cancel := context.WithTimeout(ctx, idempotencyStoreTimeout)
	defer cancel()

	if err := store.ReleaseIdempotencyKey(ctx, key); err != nil {
		util.GetLogger().Error("Failed to release idempotency key", zap.Error(err))
	}
}

func withTimeout(ctx context.Context, fn func(ctx context.Context) (bool, error)) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, idempotencyStoreTimeout)
	defer cancel()
	return fn(ctx)
}
