package security

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

// SignPayload computes the base64 HMAC-SHA512 a webhook sender is expected
// to put in the X-Webhook-Signature header.
func SignPayload(body, secret []byte) string {
	mac := hmac.New(sha512.New, secret)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the signature in constant time.
func VerifySignature(body []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := SignPayload(body, []byte(secret))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyToken compares a bearer token against its stored bcrypt hash. Only
// the hash ever lives in configuration.
func VerifyToken(token, bcryptHash string) bool {
	if token == "" || bcryptHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(bcryptHash), []byte(token)) == nil
}

// RateLimiter is a fixed-window counter in Redis, keyed per caller.
type RateLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
}

func NewRateLimiter(redisClient *redis.Client, limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	// The bucket index divides by whole seconds, so anything shorter is
	// rounded up to one second.
	if window < time.Second {
		window = time.Second
	}
	return &RateLimiter{
		redis:  redisClient,
		limit:  limit,
		window: window,
	}
}

// Allow reports whether the caller identified by key is under the limit.
// Redis being down fails open: webhook delivery matters more than the
// limiter.
func (l *RateLimiter) Allow(ctx context.Context, key string) bool {
	if l.limit <= 0 {
		return true
	}

	bucket := fmt.Sprintf("ratelimit:%s:%d", key, time.Now().Unix()/int64(l.window.Seconds()))

	count, err := l.redis.Incr(ctx, bucket).Result()
	if err != nil {
		return true
	}
	if count == 1 {
		l.redis.Expire(ctx, bucket, l.window)
	}
	return count <= int64(l.limit)
}
