package files

import (
	"bytes"
	"context"
	"strings"

	"github.com/juniorbasecompany/turna/blob"
	"github.com/juniorbasecompany/turna/domain"
	"github.com/juniorbasecompany/turna/jobengine"
)

// ThumbnailRenderer is the image-processing collaborator producing a
// small WebP preview from a stored document.
type ThumbnailRenderer interface {
	// Render returns the thumbnail bytes for the blob content.
	Render(ctx context.Context, data []byte, contentType string) ([]byte, error)
}

var thumbnailableExts = map[string]bool{
	".pdf": true, ".png": true, ".jpg": true, ".jpeg": true, ".xls": true, ".xlsx": true,
}

// ThumbnailHandler is the GENERATE_THUMBNAIL job handler. Idempotent: an
// existing thumbnail blob short-circuits; unsupported content types
// complete with a skip reason rather than failing.
func ThumbnailHandler(st Store, blobs blob.Store, renderer ThumbnailRenderer) jobengine.Handler {
	return jobengine.HandlerFunc(func(ctx context.Context, job *domain.Job) (map[string]any, error) {
		var input struct {
			FileID string `json:"file_id"`
		}
		if err := domain.Decode(job.Input, &input); err != nil {
			return nil, err
		}
		if input.FileID == "" {
			return nil, domain.BadRequest("file_id is required")
		}

		file, err := st.GetFile(ctx, input.FileID)
		if err != nil {
			return nil, err
		}
		if file.TenantID != job.TenantID {
			return nil, domain.Forbidden("access denied")
		}

		thumbKey := blob.ThumbnailKey(file.BlobKey)
		exists, err := blobs.Exists(ctx, thumbKey)
		if err != nil {
			return nil, err
		}
		if exists {
			return map[string]any{
				"file_id":       file.ID,
				"original_key":  file.BlobKey,
				"thumbnail_key": thumbKey,
				"skipped":       true,
				"reason":        "thumbnail already exists",
			}, nil
		}

		if !supportsThumbnail(file) {
			return map[string]any{
				"file_id":       file.ID,
				"original_key":  file.BlobKey,
				"thumbnail_key": thumbKey,
				"skipped":       true,
				"reason":        "unsupported content type " + file.ContentType,
			}, nil
		}

		body, err := blobs.Get(ctx, file.BlobKey)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		_, copyErr := buf.ReadFrom(body)
		body.Close()
		if copyErr != nil {
			return nil, domain.Wrap(domain.KindUnavailable, "blob download failed", copyErr)
		}

		thumb, err := renderer.Render(ctx, buf.Bytes(), file.ContentType)
		if err != nil {
			return nil, err
		}
		if err := blobs.Put(ctx, thumbKey, bytes.NewReader(thumb), "image/webp"); err != nil {
			return nil, err
		}
		return map[string]any{
			"file_id":       file.ID,
			"original_key":  file.BlobKey,
			"thumbnail_key": thumbKey,
			"skipped":       false,
		}, nil
	})
}

func supportsThumbnail(f *domain.File) bool {
	mime := f.ContentType
	if strings.HasPrefix(mime, "image/") || mime == "application/pdf" {
		return true
	}
	switch mime {
	case "application/vnd.ms-excel",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/excel", "application/x-excel", "application/x-msexcel":
		return true
	}
	if i := strings.LastIndex(f.Filename, "."); i >= 0 {
		return thumbnailableExts[strings.ToLower(f.Filename[i:])]
	}
	return false
}
