package extract

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/juniorbasecompany/turna/blob"
	"github.com/juniorbasecompany/turna/domain"
	"github.com/juniorbasecompany/turna/store"
)

// DemandExtractor is the vision/LLM collaborator turning a document into
// structured demand records.
type DemandExtractor interface {
	// Extract reads the document at path and returns a JSON-shaped result.
	Extract(ctx context.Context, path, prompt string) (map[string]any, error)
}

// Store is the persistence surface the orchestrator needs.
type Store interface {
	GetFile(ctx context.Context, id string) (*domain.File, error)
	GetHospital(ctx context.Context, id string) (*domain.Hospital, error)
}

var _ Store = (*store.Store)(nil)

// Orchestrator drives a DemandExtractor from a stored File and shapes the
// result for persistence on the Job.
type Orchestrator struct {
	store     Store
	blobs     blob.Store
	extractor DemandExtractor
	log       zerolog.Logger
}

func NewOrchestrator(st Store, blobs blob.Store, extractor DemandExtractor, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:     st,
		blobs:     blobs,
		extractor: extractor,
		log:       log.With().Str("component", "extract").Logger(),
	}
}

type extractInput struct {
	FileID string `json:"file_id"`
}

// Run is the EXTRACT_DEMAND job handler body: resolve the file and its
// hospital (tenant-checked), stream the blob to a temp path, call the
// extractor with the hospital's prompt template, and return the result
// with provenance metadata injected.
func (o *Orchestrator) Run(ctx context.Context, job *domain.Job) (map[string]any, error) {
	var input extractInput
	if err := domain.Decode(job.Input, &input); err != nil {
		return nil, err
	}
	if input.FileID == "" {
		return nil, domain.BadRequest("file_id is required")
	}

	file, err := o.store.GetFile(ctx, input.FileID)
	if err != nil {
		return nil, err
	}
	if file.TenantID != job.TenantID {
		return nil, domain.Forbidden("access denied")
	}
	if file.HospitalID == nil {
		return nil, domain.BadRequest("file has no hospital")
	}
	hospital, err := o.store.GetHospital(ctx, *file.HospitalID)
	if err != nil {
		return nil, err
	}
	if hospital.TenantID != job.TenantID {
		return nil, domain.Forbidden("access denied")
	}
	prompt := ""
	if hospital.Prompt != nil {
		prompt = *hospital.Prompt
	}

	tmpPath, err := o.downloadToTemp(ctx, file)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmpPath)

	result, err := o.extractor.Extract(ctx, tmpPath, prompt)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = map[string]any{}
	}

	meta, _ := result["meta"].(map[string]any)
	if meta == nil {
		meta = map[string]any{}
	}
	delete(meta, "pdf_path")
	meta["file_id"] = file.ID
	meta["filename"] = file.Filename
	meta["hospital_id"] = hospital.ID
	meta["hospital_name"] = hospital.Name
	result["meta"] = meta

	o.log.Info().Str("job_id", job.ID).Str("file_id", file.ID).
		Str("hospital_id", hospital.ID).Msg("demand extraction finished")
	return result, nil
}

// downloadToTemp streams the blob into a local file with the original
// extension so the extractor can sniff the format; unknown extensions
// default to .pdf.
func (o *Orchestrator) downloadToTemp(ctx context.Context, file *domain.File) (string, error) {
	ext := strings.ToLower(filepath.Ext(file.Filename))
	switch ext {
	case ".pdf", ".png", ".jpg", ".jpeg", ".xlsx", ".xls":
	default:
		ext = ".pdf"
	}

	tmp, err := os.CreateTemp("", "turna-extract-*"+ext)
	if err != nil {
		return "", domain.Wrap(domain.KindInternal, "create temp file", err)
	}
	body, err := o.blobs.Get(ctx, file.BlobKey)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	defer body.Close()

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", domain.Wrap(domain.KindUnavailable, "blob download failed", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", domain.Wrap(domain.KindInternal, "close temp file", err)
	}
	return tmp.Name(), nil
}
