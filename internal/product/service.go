package product

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/vitrine/service/internal/asset"
	"github.com/vitrine/service/internal/storage"
)

// Service binds product records to their image assets.
//
// Every mutation runs validate -> write asset -> commit record -> clean up,
// strictly in that order. A record therefore never points at an asset that
// was not written first, and a superseded asset is only removed once the
// record no longer references it. There is no cross-request locking: two
// concurrent updates of one product race at the record store (last write
// wins) and the loser's asset may be removed under it.
type Service struct {
	records RecordStore
	assets  storage.Store
	policy  asset.Policy
}

// NewService creates a new product Service.
func NewService(records RecordStore, assets storage.Store, policy asset.Policy) *Service {
	return &Service{records: records, assets: assets, policy: policy.Normalize()}
}

// Policy returns the upload policy the service validates against.
func (s *Service) Policy() asset.Policy { return s.policy }

// CreateInput is a request to create a product.
type CreateInput struct {
	Name        string
	Description *string
	Category    *string
	Upload      *asset.Upload
}

// Patch is a partial update. A nil field is left unchanged; a field set to an
// empty or blank string clears the value. Name cannot be cleared.
type Patch struct {
	Name        *string
	Description *string
	Category    *string
}

// Get returns a product by id.
func (s *Service) Get(ctx context.Context, id int64) (*Product, error) {
	p, err := s.records.FindByID(ctx, id)
	if err != nil {
		return nil, recordErr("find product", err)
	}
	return p, nil
}

// List returns all products in the given order.
func (s *Service) List(ctx context.Context, order Order) ([]*Product, error) {
	products, err := s.records.List(ctx, order)
	if err != nil {
		return nil, persistenceFailed("list products", err)
	}
	return products, nil
}

// Create validates the upload, stores it, then inserts the product record.
// If the insert fails, an asset written by this call is removed again.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalidInput("name required")
	}
	if in.Upload == nil {
		return nil, invalidInput("file required")
	}

	ext, err := asset.Validate(*in.Upload, s.policy)
	if err != nil {
		return nil, err
	}

	stored, err := s.assets.Write(ctx, in.Upload.Data, ext)
	if err != nil {
		return nil, err
	}

	p, err := s.records.Create(ctx, Fields{
		Name:        name,
		Description: normalizeOptional(in.Description),
		Category:    normalizeOptional(in.Category),
		Image:       stored.Name,
	})
	if err != nil {
		s.discard(ctx, stored)
		return nil, persistenceFailed("create product", err)
	}

	log.Printf("catalog: created product id=%d image=%s (new asset: %t)", p.ID, p.Image, stored.Created)
	return p, nil
}

// Update applies patch to the product and, when upload is non-nil, swaps its
// asset: the new asset is written, the record is committed, and only then is
// the previous asset removed.
func (s *Service) Update(ctx context.Context, id int64, patch Patch, upload *asset.Upload) (*Product, error) {
	current, err := s.records.FindByID(withFreshRead(ctx), id)
	if err != nil {
		return nil, recordErr("find product", err)
	}

	fields, err := merge(current, patch)
	if err != nil {
		return nil, err
	}

	var stored storage.Stored
	if upload != nil {
		ext, err := asset.Validate(*upload, s.policy)
		if err != nil {
			return nil, err
		}
		stored, err = s.assets.Write(ctx, upload.Data, ext)
		if err != nil {
			return nil, err
		}
		fields.Image = stored.Name
	}

	updated, err := s.records.Update(ctx, id, fields)
	if err != nil {
		// The old record still references the old asset; only the new one can be orphaned.
		if upload != nil && stored.Name != current.Image {
			s.discard(ctx, stored)
		}
		return nil, recordErr("update product", err)
	}

	if upload != nil && current.Image != stored.Name {
		s.release(ctx, current.Image)
	}
	return updated, nil
}

// Delete removes the product record and then its asset.
func (s *Service) Delete(ctx context.Context, id int64) (*Product, error) {
	if _, err := s.records.FindByID(withFreshRead(ctx), id); err != nil {
		return nil, recordErr("find product", err)
	}

	deleted, err := s.records.Delete(ctx, id)
	if err != nil {
		return nil, recordErr("delete product", err)
	}

	s.release(ctx, deleted.Image)
	return deleted, nil
}

// Locate fills in the public URL of each product for the given origin.
func (s *Service) Locate(origin storage.Origin, products ...*Product) {
	for _, p := range products {
		if p != nil && p.Image != "" {
			p.URL = s.assets.Locator(p.Image, origin)
		}
	}
}

// discard removes an asset written by a request whose commit failed. Assets
// that already existed before the write are left alone.
func (s *Service) discard(ctx context.Context, stored storage.Stored) {
	if !stored.Created {
		return
	}
	if err := s.assets.Remove(ctx, stored.Name); err != nil {
		log.Printf("catalog: warning: orphaned asset %s not removed: %v", stored.Name, err)
	}
}

// release removes a superseded asset once no product references it.
// Failures are logged only; the caller's operation has already succeeded.
func (s *Service) release(ctx context.Context, name string) {
	if name == "" {
		return
	}
	n, err := s.records.CountByImage(ctx, name)
	if err != nil {
		log.Printf("catalog: warning: keeping asset %s, reference check failed: %v", name, err)
		return
	}
	if n > 0 {
		return
	}
	if err := s.assets.Remove(ctx, name); err != nil {
		log.Printf("catalog: warning: stale asset %s not removed: %v", name, err)
	}
}

func merge(current *Product, patch Patch) (Fields, error) {
	f := Fields{
		Name:        current.Name,
		Description: current.Description,
		Category:    current.Category,
		Image:       current.Image,
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return Fields{}, invalidInput("name required")
		}
		f.Name = name
	}
	if patch.Description != nil {
		f.Description = normalizeOptional(patch.Description)
	}
	if patch.Category != nil {
		f.Category = normalizeOptional(patch.Category)
	}
	return f, nil
}

// normalizeOptional trims v and maps blank to nil.
func normalizeOptional(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// recordErr passes ErrNotFound through and wraps anything else as a persistence failure.
func recordErr(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return persistenceFailed(op, err)
}
