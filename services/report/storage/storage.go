package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"

	"github.com/citywatch/backend/pkg/gen"
	"github.com/citywatch/backend/services/report/entity"
)

// ErrDraftNotFound is returned for unknown or expired draft IDs.
var ErrDraftNotFound = errors.New("draft not found")

// Storage holds in-progress drafts in memory. Drafts are transient: there is
// no persistence, and abandoned drafts expire after the configured TTL with
// their image handles released on eviction.
type Storage interface {
	CreateDraft(ctx context.Context) (*entity.Draft, error)
	GetDraft(ctx context.Context, id uuid.UUID) (*entity.Draft, error)
	DeleteDraft(ctx context.Context, id uuid.UUID) error
}

type storage struct {
	drafts *cache.Cache
	uuids  gen.UUIDGenerator
}

func New(ttl time.Duration, uuids gen.UUIDGenerator) Storage {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	drafts := cache.New(ttl, ttl/2)
	drafts.OnEvicted(func(_ string, value interface{}) {
		if draft, ok := value.(*entity.Draft); ok {
			draft.ReleaseImages()
		}
	})
	return &storage{
		drafts: drafts,
		uuids:  uuids,
	}
}

func (s *storage) CreateDraft(ctx context.Context) (*entity.Draft, error) {
	draft := entity.NewDraft(s.uuids.Next())
	s.drafts.SetDefault(draft.ID.String(), draft)
	return draft, nil
}

func (s *storage) GetDraft(ctx context.Context, id uuid.UUID) (*entity.Draft, error) {
	value, exists := s.drafts.Get(id.String())
	if !exists {
		return nil, ErrDraftNotFound
	}
	draft, ok := value.(*entity.Draft)
	if !ok {
		return nil, ErrDraftNotFound
	}
	// Touch the entry so active drafts do not expire mid-report.
	s.drafts.SetDefault(id.String(), draft)
	return draft, nil
}

func (s *storage) DeleteDraft(ctx context.Context, id uuid.UUID) error {
	if _, exists := s.drafts.Get(id.String()); !exists {
		return ErrDraftNotFound
	}
	s.drafts.Delete(id.String())
	return nil
}
