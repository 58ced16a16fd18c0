package memory

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// Capture is the most recent photo taken for a user, kept hot for the
// GET last-image endpoint.
type Capture struct {
	UserID   string
	Data     []byte
	MimeType string
	ImageURL string
	TakenAt  time.Time
}

// CaptureCache holds recent captures in memory. Entries expire on their own;
// this is a convenience view, not a source of truth.
type CaptureCache struct {
	cache *cache.Cache
}

func NewCaptureCache() *CaptureCache {
	// Default expiration of 30 minutes, purge sweep every 10.
	c := cache.New(30*time.Minute, 10*time.Minute)
	return &CaptureCache{cache: c}
}

func (r *CaptureCache) Save(capture *Capture) {
	r.cache.Set(capture.UserID, capture, cache.DefaultExpiration)
}

func (r *CaptureCache) Get(userID string) (*Capture, bool) {
	if x, found := r.cache.Get(userID); found {
		return x.(*Capture), true
	}
	return nil, false
}

func (r *CaptureCache) Delete(userID string) {
	r.cache.Delete(userID)
}
