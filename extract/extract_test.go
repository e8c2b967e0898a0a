package extract

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juniorbasecompany/turna/blob"
	"github.com/juniorbasecompany/turna/domain"
)

type fakeStore struct {
	mu        sync.Mutex
	files     map[string]*domain.File
	hospitals map[string]*domain.Hospital
}

func (f *fakeStore) GetFile(_ context.Context, id string) (*domain.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok {
		return nil, domain.NotFound("file not found")
	}
	cp := *file
	return &cp, nil
}

func (f *fakeStore) GetHospital(_ context.Context, id string) (*domain.Hospital, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hospitals[id]
	if !ok {
		return nil, domain.NotFound("hospital not found")
	}
	cp := *h
	return &cp, nil
}

var _ Store = (*fakeStore)(nil)

type fakeExtractor struct {
	gotPath    string
	gotPrompt  string
	pathExists bool
	result     map[string]any
	err        error
}

func (f *fakeExtractor) Extract(_ context.Context, path, prompt string) (map[string]any, error) {
	f.gotPath = path
	f.gotPrompt = prompt
	_, statErr := os.Stat(path)
	f.pathExists = statErr == nil
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func setup(t *testing.T) (*Orchestrator, *fakeStore, *blob.Memory, *fakeExtractor) {
	t.Helper()
	prompt := "extract the OR map"
	st := &fakeStore{
		files: map[string]*domain.File{
			"F1": {ID: "F1", TenantID: "T", HospitalID: ptr("H1"), Filename: "map.pdf", ContentType: "application/pdf", BlobKey: "T/import/abc_map.pdf"},
		},
		hospitals: map[string]*domain.Hospital{
			"H1": {ID: "H1", TenantID: "T", Name: "Santa Casa", Prompt: &prompt},
		},
	}
	blobs := blob.NewMemory()
	require.NoError(t, blobs.Put(context.Background(), "T/import/abc_map.pdf", bytes.NewReader([]byte("%PDF-content")), "application/pdf"))
	extractor := &fakeExtractor{result: map[string]any{
		"demands": []any{map[string]any{"room": "OR-1"}},
		"meta":    map[string]any{"pdf_path": "/tmp/leak.pdf", "pages": 2},
	}}
	o := NewOrchestrator(st, blobs, extractor, zerolog.New(io.Discard))
	return o, st, blobs, extractor
}

func ptr(s string) *string { return &s }

func extractJob(fileID string) *domain.Job {
	return &domain.Job{ID: "J1", TenantID: "T", Kind: domain.JobExtractDemand,
		Status: domain.JobRunning, Input: map[string]any{"file_id": fileID}}
}

func TestRunInjectsMetadataAndCleansUp(t *testing.T) {
	o, _, _, extractor := setup(t)

	result, err := o.Run(context.Background(), extractJob("F1"))
	require.NoError(t, err)

	meta, ok := result["meta"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "F1", meta["file_id"])
	assert.Equal(t, "map.pdf", meta["filename"])
	assert.Equal(t, "H1", meta["hospital_id"])
	assert.Equal(t, "Santa Casa", meta["hospital_name"])
	assert.NotContains(t, meta, "pdf_path")
	// Pre-existing metadata survives.
	assert.Equal(t, 2, meta["pages"])

	// The hospital's template reached the extractor.
	assert.Equal(t, "extract the OR map", extractor.gotPrompt)

	// The blob was staged to a local file during the call and removed
	// afterwards.
	assert.True(t, extractor.pathExists, "temp file must exist while extracting")
	_, statErr := os.Stat(extractor.gotPath)
	assert.True(t, os.IsNotExist(statErr), "temp file must be removed after the run")
}

func TestRunTempFileRemovedOnExtractorFailure(t *testing.T) {
	o, _, _, extractor := setup(t)
	extractor.err = domain.Unavailable("model overloaded")

	_, err := o.Run(context.Background(), extractJob("F1"))
	require.Error(t, err)
	_, statErr := os.Stat(extractor.gotPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunTenantMismatch(t *testing.T) {
	o, st, _, _ := setup(t)
	st.files["F1"].TenantID = "OTHER"

	_, err := o.Run(context.Background(), extractJob("F1"))
	require.Error(t, err)
	assert.True(t, domain.IsForbidden(err))
}

func TestRunHospitalTenantMismatch(t *testing.T) {
	o, st, _, _ := setup(t)
	st.hospitals["H1"].TenantID = "OTHER"

	_, err := o.Run(context.Background(), extractJob("F1"))
	require.Error(t, err)
	assert.True(t, domain.IsForbidden(err))
}

func TestRunMissingFile(t *testing.T) {
	o, _, _, _ := setup(t)
	_, err := o.Run(context.Background(), extractJob("NOPE"))
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestRunRequiresFileID(t *testing.T) {
	o, _, _, _ := setup(t)
	job := &domain.Job{ID: "J1", TenantID: "T", Kind: domain.JobExtractDemand, Input: map[string]any{}}
	_, err := o.Run(context.Background(), job)
	require.Error(t, err)
	assert.True(t, domain.IsBadRequest(err))
}

func TestMimeTypeFor(t *testing.T) {
	assert.Equal(t, "application/pdf", mimeTypeFor("a.pdf"))
	assert.Equal(t, "image/png", mimeTypeFor("scan.PNG"))
	assert.Equal(t, "image/jpeg", mimeTypeFor("photo.jpeg"))
	assert.Equal(t, "application/pdf", mimeTypeFor("noext"))
}

func TestStripFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFence(`{"a":1}`))
}
