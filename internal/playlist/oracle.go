package playlist

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
)

// SongOracle answers whether a song exists in the catalog.
type SongOracle interface {
	SongExists(ctx context.Context, songID string) (bool, error)
}

// UserOracle answers whether a user account exists.
type UserOracle interface {
	UserExists(ctx context.Context, userID string) (bool, error)
}

// Oracle is both.
type Oracle interface {
	SongOracle
	UserOracle
}

// HTTPOracle asks the catalog and user services over their internal
// existence endpoints.
type HTTPOracle struct {
	client     *http.Client
	catalogURL string
	usersURL   string
}

func NewHTTPOracle(client *http.Client, catalogURL, usersURL string) *HTTPOracle {
	if client == nil {
		client = &http.Client{Timeout: 3 * time.Second}
	}
	return &HTTPOracle{client: client, catalogURL: catalogURL, usersURL: usersURL}
}

func (o *HTTPOracle) SongExists(ctx context.Context, songID string) (bool, error) {
	return o.exists(ctx, o.catalogURL, "songs", songID)
}

func (o *HTTPOracle) UserExists(ctx context.Context, userID string) (bool, error) {
	return o.exists(ctx, o.usersURL, "users", userID)
}

// exists asks {baseURL}/internal/{kind}/{id}/exists. Any path already on
// baseURL is kept, and id travels as a single escaped segment.
func (o *HTTPOracle) exists(ctx context.Context, baseURL, kind, id string) (bool, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return false, err
	}
	u := base.JoinPath("internal", kind, url.PathEscape(id), "exists")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return false, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("existence check %s: %w", u.Host, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("existence check %s returned %d", u.Host, resp.StatusCode)
	}
}

// CachedOracle remembers positive answers in Redis for ttl. Negative answers
// are never cached so a freshly created song or user is seen at once.
type CachedOracle struct {
	next Oracle
	rdb  *redis.Client
	ttl  time.Duration
}

func NewCachedOracle(next Oracle, rdb *redis.Client, ttl time.Duration) *CachedOracle {
	return &CachedOracle{next: next, rdb: rdb, ttl: ttl}
}

func (c *CachedOracle) SongExists(ctx context.Context, songID string) (bool, error) {
	return c.cached(ctx, "song", songID, c.next.SongExists)
}

func (c *CachedOracle) UserExists(ctx context.Context, userID string) (bool, error) {
	return c.cached(ctx, "user", userID, c.next.UserExists)
}

func (c *CachedOracle) cached(ctx context.Context, kind, id string, lookup func(context.Context, string) (bool, error)) (bool, error) {
	if c.rdb == nil || c.ttl <= 0 {
		return lookup(ctx, id)
	}
	key := "playlist:exists:" + kind + ":" + id

	if err := c.rdb.Get(ctx, key).Err(); err == nil {
		return true, nil
	} else if !errors.Is(err, redis.Nil) {
		// Cache trouble only costs a remote lookup.
		return lookup(ctx, id)
	}

	ok, err := lookup(ctx, id)
	if err != nil || !ok {
		return ok, err
	}
	_ = c.rdb.Set(ctx, key, "1", c.ttl).Err()
	return true, nil
}
