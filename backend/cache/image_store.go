package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/amandeep2102/vision-chat/backend/logger"
	"github.com/amandeep2102/vision-chat/shared/models"
)

// DefaultTTL is how long an uploaded image stays retrievable.
const DefaultTTL = time.Hour

var ErrNotFound = errors.New("image not found")

type Option func(*ImageStore)

func WithClock(c clockwork.Clock) Option {
	return func(s *ImageStore) { s.clock = c }
}

// WithIDGenerator replaces uuid v4 ids.
func WithIDGenerator(fn func() string) Option {
	return func(s *ImageStore) { s.newID = fn }
}

func WithTTL(ttl time.Duration) Option {
	return func(s *ImageStore) { s.ttl = ttl }
}

func WithSweepInterval(d time.Duration) Option {
	return func(s *ImageStore) { s.sweepInterval = d }
}

// ImageStore keeps uploaded images in memory until their TTL runs out.
// Expiry is absolute: reads never extend a record's lifetime.
type ImageStore struct {
	mu            sync.RWMutex
	items         map[string]*models.ImageRecord
	clock         clockwork.Clock
	newID         func() string
	ttl           time.Duration
	sweepInterval time.Duration

	putCount      atomic.Int64
	hitCount      atomic.Int64
	missCount     atomic.Int64
	evictionCount atomic.Int64
}

func NewImageStore(opts ...Option) *ImageStore {
	s := &ImageStore{
		items:         make(map[string]*models.ImageRecord),
		clock:         clockwork.NewRealClock(),
		newID:         func() string { return uuid.New().String() },
		ttl:           DefaultTTL,
		sweepInterval: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put stores the encoded payload under a fresh id.
func (s *ImageStore) Put(data string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	for attempts := 0; ; attempts++ {
		if _, taken := s.items[id]; !taken && id != "" {
			break
		}
		if attempts >= 3 {
			return "", errors.New("could not allocate a unique image id")
		}
		id = s.newID()
	}

	now := s.clock.Now()
	s.items[id] = &models.ImageRecord{
		ID:        id,
		Data:      data,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.putCount.Add(1)
	return id, nil
}

// Get returns the payload with any data URI prefix removed.
func (s *ImageStore) Get(id string) (string, error) {
	rec, err := s.Record(id)
	if err != nil {
		return "", err
	}
	return models.StripDataURI(rec.Data), nil
}

// Record returns a copy of the stored record.
func (s *ImageStore) Record(id string) (models.ImageRecord, error) {
	now := s.clock.Now()

	s.mu.RLock()
	rec, exists := s.items[id]
	var out models.ImageRecord
	if exists {
		out = *rec
	}
	s.mu.RUnlock()

	// Expired but not yet swept records are already unreachable.
	if !exists || !now.Before(out.ExpiresAt) {
		s.missCount.Add(1)
		return models.ImageRecord{}, ErrNotFound
	}
	s.hitCount.Add(1)
	return out, nil
}

// Evict removes id. Removing an absent id is a no-op.
func (s *ImageStore) Evict(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

func (s *ImageStore) removeLocked(id string) bool {
	if _, exists := s.items[id]; !exists {
		return false
	}
	delete(s.items, id)
	s.evictionCount.Add(1)
	return true
}

// Sweep evicts every record whose TTL has elapsed and reports how many went.
func (s *ImageStore) Sweep() int {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, rec := range s.items {
		if now.Before(rec.ExpiresAt) {
			continue
		}
		if s.removeLocked(id) {
			removed++
		}
	}
	return removed
}

func (s *ImageStore) Name() string { return "image-store-sweeper" }

// Run sweeps on a fixed interval until ctx is done.
func (s *ImageStore) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	logger.Infof("[IMAGE] sweeper started (ttl=%s, interval=%s)", s.ttl, s.sweepInterval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			if n := s.Sweep(); n > 0 {
				logger.Infof("[IMAGE] evicted %d expired images", n)
			}
		}
	}
}

func (s *ImageStore) TTL() time.Duration {
	return s.ttl
}

func (s *ImageStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

type StoreStats struct {
	Size          int     `json:"size"`
	PutCount      int64   `json:"put_count"`
	HitCount      int64   `json:"hit_count"`
	MissCount     int64   `json:"miss_count"`
	HitRate       float64 `json:"hit_rate"`
	EvictionCount int64   `json:"eviction_count"`
	TTLSeconds    float64 `json:"ttl_seconds"`
}

func (s *ImageStore) GetStats() StoreStats {
	hits, misses := s.hitCount.Load(), s.missCount.Load()
	total := hits + misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	return StoreStats{
		Size:          s.Size(),
		PutCount:      s.putCount.Load(),
		HitCount:      hits,
		MissCount:     misses,
		HitRate:       hitRate,
		EvictionCount: s.evictionCount.Load(),
		TTLSeconds:    s.ttl.Seconds(),
	}
}
