package redis

import "strings"

// Every key lives under "cs:<purpose>:..." so a shared instance can be
// inspected and flushed per concern.
const (
	keyNamespace       = "cs"
	idempotencyPrefix  = "idempotency"
	rateLimitPrefix    = "rate_limit"
	sessionPrefix      = "session"
	availabilityPrefix = "availability"
	lockPrefix         = "lock"
)

// IdempotencyKey addresses a stored response for a client-supplied key.
func (c *Client) IdempotencyKey(scope, id string) string {
	return buildKey(idempotencyPrefix, scope, id)
}

// RateLimitKey addresses a fixed-window counter.
func (c *Client) RateLimitKey(scope string) string {
	return buildKey(rateLimitPrefix, scope)
}

// AccessSessionKey addresses the refresh session bound to an access token jti.
func (c *Client) AccessSessionKey(accessID string) string {
	return buildKey(sessionPrefix, "access", accessID)
}

// AvailabilityKey addresses the cached availability hash of a product. Each
// variant is a field, so one DEL invalidates the whole product.
func (c *Client) AvailabilityKey(productID string) string {
	return buildKey(availabilityPrefix, productID)
}

// LockKey addresses the lock guarding a named singleton job.
func (c *Client) LockKey(name string) string {
	return buildKey(lockPrefix, name)
}

func buildKey(parts ...string) string {
	var sb strings.Builder
	sb.WriteString(keyNamespace)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sb.WriteByte(':')
		sb.WriteString(part)
	}
	return sb.String()
}
