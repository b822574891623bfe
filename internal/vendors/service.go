package vendors

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/atelier-studio/atelier-crm/internal/platform/httpx"
)

// Service exposes the vendor directory. Reads dominate; lookups go
// through the cache and a singleflight group so a burst of workflow
// checks against the same vendor hits the repository once.
type Service struct {
	repo  Repository
	cache *Cache
	group singleflight.Group
}

// NewService constructs the vendor service. Cache may be nil.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

func (s *Service) List(ctx context.Context, filters ListFilters) ([]Vendor, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Vendor, error) {
	if id <= 0 {
		return Vendor{}, fmt.Errorf("%w: invalid vendor id", httpx.ErrValidation)
	}
	key := keyVendor(id)
	result, err, _ := s.group.Do(key, func() (any, error) {
		var v Vendor
		err := s.cache.FetchJSON(ctx, key, &v, func(ctx context.Context) (any, error) {
			return s.repo.Get(ctx, id)
		})
		return v, err
	})
	if err != nil {
		return Vendor{}, err
	}
	return result.(Vendor), nil
}

// Exists reports whether a vendor id resolves in the directory. Used by
// the purchase-order workflow for reference checks.
func (s *Service) Exists(ctx context.Context, id int64) (bool, error) {
	_, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Service) Create(ctx context.Context, vendor Vendor) (Vendor, error) {
	if err := validate(vendor); err != nil {
		return Vendor{}, err
	}
	return s.repo.Create(ctx, vendor)
}

func (s *Service) Update(ctx context.Context, id int64, vendor Vendor) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid vendor id", httpx.ErrValidation)
	}
	if err := validate(vendor); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, id, vendor); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid vendor id", httpx.ErrValidation)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, id)
}

func validate(vendor Vendor) error {
	if vendor.Name == "" {
		return fmt.Errorf("%w: vendor name required", httpx.ErrValidation)
	}
	if vendor.Rating < 0 || vendor.Rating > 5 {
		return fmt.Errorf("%w: rating must be between 0 and 5", httpx.ErrValidation)
	}
	return nil
}
