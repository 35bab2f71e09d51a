package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/osamaloay/TicketsBooking-sub000/pkg/response"
	"github.com/redis/go-redis/v9"
)

const (
	IdempotencyKeyHeader     = "X-Idempotency-Key"
	ContextKeyIdempotencyKey = "idempotency_key"
	IdempotencyKeyPrefix     = "idempotency:"

	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultProcessingTTL  = 60 * time.Second
)

type IdempotencyStatus string

const (
	StatusProcessing IdempotencyStatus = "processing"
	StatusCompleted  IdempotencyStatus = "completed"
)

// IdempotencyRecord is the cached state of a keyed request
type IdempotencyRecord struct {
	Status       IdempotencyStatus `json:"status"`
	RequestHash  string            `json:"request_hash"`
	ResponseCode int               `json:"response_code,omitempty"`
	ResponseBody string            `json:"response_body,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// RedisClient is the subset of go-redis used here; *pkg/redis.Client satisfies it
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// IdempotencyConfig configures Idempotency
type IdempotencyConfig struct {
	Redis         RedisClient
	TTL           time.Duration
	ProcessingTTL time.Duration
}

// Idempotency replays the stored response for a repeated X-Idempotency-Key.
// Requests without the header pass through. Keys are scoped per user, and a
// key reused with a different method, path or body is rejected with 422.
// 5xx responses are not cached so the client may retry.
func Idempotency(cfg IdempotencyConfig) gin.HandlerFunc {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultIdempotencyTTL
	}
	if cfg.ProcessingTTL <= 0 {
		cfg.ProcessingTTL = DefaultProcessingTTL
	}

	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" || cfg.Redis == nil {
			c.Next()
			return
		}
		c.Set(ContextKeyIdempotencyKey, key)

		var body []byte
		if c.Request.Body != nil {
			body, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		userID, _ := GetUserID(c)
		hash := requestHash(c.Request.Method, c.Request.URL.Path, body)
		redisKey := IdempotencyKeyPrefix + userID + ":" + key
		ctx := c.Request.Context()

		record := &IdempotencyRecord{Status: StatusProcessing, RequestHash: hash, CreatedAt: time.Now().UTC()}
		data, _ := json.Marshal(record)

		acquired, err := cfg.Redis.SetNX(ctx, redisKey, string(data), cfg.ProcessingTTL).Result()
		if err != nil {
			// fail open
			c.Next()
			return
		}
		if !acquired {
			replay(c, cfg.Redis, redisKey, hash)
			return
		}

		rw := &capturingWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = rw
		c.Next()

		status := rw.Status()
		if status >= http.StatusInternalServerError {
			cfg.Redis.Del(context.WithoutCancel(ctx), redisKey)
			return
		}

		record.Status = StatusCompleted
		record.ResponseCode = status
		record.ResponseBody = rw.body.String()
		data, _ = json.Marshal(record)
		cfg.Redis.Set(context.WithoutCancel(ctx), redisKey, string(data), cfg.TTL)
	}
}

func replay(c *gin.Context, rdb RedisClient, redisKey, hash string) {
	raw, err := rdb.Get(c.Request.Context(), redisKey).Result()
	if errors.Is(err, redis.Nil) {
		response.Abort(c, http.StatusConflict, "REQUEST_IN_PROGRESS", "a request with this idempotency key is being processed")
		return
	}
	if err != nil {
		c.Next()
		return
	}

	var existing IdempotencyRecord
	if err := json.Unmarshal([]byte(raw), &existing); err != nil {
		c.Next()
		return
	}

	switch {
	case existing.RequestHash != hash:
		response.Abort(c, http.StatusUnprocessableEntity, "IDEMPOTENCY_KEY_REUSED", "idempotency key already used with a different request")
	case existing.Status == StatusProcessing:
		response.Abort(c, http.StatusConflict, "REQUEST_IN_PROGRESS", "a request with this idempotency key is being processed")
	default:
		c.Header("Idempotent-Replayed", "true")
		c.Data(existing.ResponseCode, "application/json; charset=utf-8", []byte(existing.ResponseBody))
		c.Abort()
	}
}

func requestHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(path))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type capturingWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *capturingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
