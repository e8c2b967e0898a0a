package files

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/juniorbasecompany/turna/authz"
	"github.com/juniorbasecompany/turna/blob"
	"github.com/juniorbasecompany/turna/clock"
	"github.com/juniorbasecompany/turna/domain"
	"github.com/juniorbasecompany/turna/store"
)

// Store is the persistence surface the file service needs.
type Store interface {
	GetHospital(ctx context.Context, id string) (*domain.Hospital, error)
	CreateFile(ctx context.Context, f *domain.File) error
	GetFile(ctx context.Context, id string) (*domain.File, error)
	ListFiles(ctx context.Context, tenantID string, limit, offset int) ([]*domain.File, error)
	DeleteFile(ctx context.Context, id string) error
}

var _ Store = (*store.Store)(nil)

// Service owns File rows and their blobs. Files are immutable once
// created; delete removes the blob and its thumbnail best-effort.
type Service struct {
	store Store
	blobs blob.Store
	clock clock.Clock
	log   zerolog.Logger
}

func NewService(st Store, blobs blob.Store, clk clock.Clock, log zerolog.Logger) *Service {
	return &Service{
		store: st,
		blobs: blobs,
		clock: clk,
		log:   log.With().Str("component", "files").Logger(),
	}
}

// Upload stores the blob under a fresh key and creates the File row.
func (s *Service) Upload(ctx context.Context, caller authz.Caller, hospitalID, filename, contentType string, size int64, body io.Reader) (*domain.File, error) {
	if err := caller.RequireFull(); err != nil {
		return nil, err
	}
	hospital, err := s.store.GetHospital(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	if err := caller.SameTenant(hospital.TenantID); err != nil {
		return nil, err
	}

	key := blob.NewKey(caller.TenantID, "import", filename)
	if err := s.blobs.Put(ctx, key, body, contentType); err != nil {
		return nil, err
	}
	file := &domain.File{
		ID:          uuid.NewString(),
		TenantID:    caller.TenantID,
		HospitalID:  &hospital.ID,
		Filename:    filename,
		ContentType: contentType,
		BlobKey:     key,
		FileSize:    size,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.store.CreateFile(ctx, file); err != nil {
		// Orphaned blob; remove it best-effort.
		_ = s.blobs.Delete(ctx, key)
		return nil, err
	}
	s.log.Info().Str("file_id", file.ID).Str("blob_key", key).Int64("size", size).Msg("file uploaded")
	return file, nil
}

// Get returns a tenant-scoped file.
func (s *Service) Get(ctx context.Context, caller authz.Caller, fileID string) (*domain.File, error) {
	if err := caller.RequireFull(); err != nil {
		return nil, err
	}
	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if err := caller.SameTenant(file.TenantID); err != nil {
		return nil, err
	}
	return file, nil
}

// List returns the tenant's files, newest first.
func (s *Service) List(ctx context.Context, caller authz.Caller, limit, offset int) ([]*domain.File, error) {
	if err := caller.RequireFull(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.ListFiles(ctx, caller.TenantID, limit, offset)
}

// PresignDownload returns a time-limited download URL.
func (s *Service) PresignDownload(ctx context.Context, caller authz.Caller, fileID string, ttl time.Duration) (string, error) {
	file, err := s.Get(ctx, caller, fileID)
	if err != nil {
		return "", err
	}
	return s.blobs.PresignGet(ctx, file.BlobKey, ttl)
}

// Delete removes the row, then the blob and its thumbnail best-effort.
func (s *Service) Delete(ctx context.Context, caller authz.Caller, fileID string) error {
	file, err := s.Get(ctx, caller, fileID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteFile(ctx, file.ID); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, file.BlobKey); err != nil {
		s.log.Warn().Err(err).Str("blob_key", file.BlobKey).Msg("blob delete failed")
	}
	if err := s.blobs.Delete(ctx, blob.ThumbnailKey(file.BlobKey)); err != nil {
		s.log.Warn().Err(err).Str("blob_key", file.BlobKey).Msg("thumbnail delete failed")
	}
	return nil
}
