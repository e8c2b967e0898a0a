package domain

import (
	"encoding/json"
	"time"
)

// Tenant is the root of multi-tenant isolation. Every other entity except
// Account carries a TenantID and must never be returned across tenants.
type Tenant struct {
	ID        string
	Name      string
	Label     *string
	Timezone  string
	Locale    string
	Currency  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Location resolves the tenant's IANA timezone, falling back to UTC.
func (t *Tenant) Location() *time.Location {
	if t == nil || t.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Account is a human principal. Email is globally unique and lowercased.
// The authoritative role lives on Member; Account.Role is a legacy
// convenience kept for compatibility with older clients.
type Account struct {
	ID           string
	Email        string
	Name         string
	AuthProvider string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type MemberRole string

const (
	RoleAdmin   MemberRole = "admin"
	RoleAccount MemberRole = "account"
)

func ParseMemberRole(s string) (MemberRole, error) {
	switch MemberRole(s) {
	case RoleAdmin, RoleAccount:
		return MemberRole(s), nil
	}
	return "", BadRequest("invalid role %q (expected: admin|account)", s)
}

type MemberStatus string

const (
	MemberPending  MemberStatus = "PENDING"
	MemberActive   MemberStatus = "ACTIVE"
	MemberRejected MemberStatus = "REJECTED"
	MemberRemoved  MemberStatus = "REMOVED"
)

// VacationSpan is a half-open [Start, End) instant interval.
type VacationSpan struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Member is the Account ↔ Tenant edge. AccountID is nil for pending
// invites, which are then identified by (TenantID, Email).
type Member struct {
	ID        string
	TenantID  string
	AccountID *string
	Email     *string
	Role      MemberRole
	Status    MemberStatus
	Name      *string
	CanPeds   bool
	Sequence  int
	Vacation  []VacationSpan
	Attribute map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayName returns the member's public name, falling back to email or id.
func (m *Member) DisplayName() string {
	if m.Name != nil && *m.Name != "" {
		return *m.Name
	}
	if m.Email != nil && *m.Email != "" {
		return *m.Email
	}
	return m.ID
}

type Hospital struct {
	ID        string
	TenantID  string
	Name      string
	Label     *string
	Prompt    *string
	Color     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// File is immutable once created. BlobKey is globally unique.
type File struct {
	ID          string
	TenantID    string
	HospitalID  *string
	Filename    string
	ContentType string
	BlobKey     string
	FileSize    int64
	CreatedAt   time.Time
}

type JobKind string

const (
	JobPing              JobKind = "PING"
	JobExtractDemand     JobKind = "EXTRACT_DEMAND"
	JobGenerateSchedule  JobKind = "GENERATE_SCHEDULE"
	JobGenerateThumbnail JobKind = "GENERATE_THUMBNAIL"
)

func ParseJobKind(s string) (JobKind, error) {
	switch JobKind(s) {
	case JobPing, JobExtractDemand, JobGenerateSchedule, JobGenerateThumbnail:
		return JobKind(s), nil
	}
	return "", BadRequest("invalid job kind %q", s)
}

type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
)

func ParseJobStatus(s string) (JobStatus, error) {
	switch JobStatus(s) {
	case JobPending, JobRunning, JobCompleted, JobFailed:
		return JobStatus(s), nil
	}
	return "", BadRequest("invalid job status %q", s)
}

// Terminal reports whether the status admits no further transitions other
// than an explicit admin requeue.
func (s JobStatus) Terminal() bool { return s == JobCompleted || s == JobFailed }

// Job is a unit of asynchronous work. Status moves PENDING → RUNNING →
// (COMPLETED | FAILED); FAILED may be resurrected to PENDING by requeue.
type Job struct {
	ID          string
	TenantID    string
	Kind        JobKind
	Status      JobStatus
	Input       map[string]any
	Result      map[string]any
	Error       *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

type ScheduleStatus string

const (
	ScheduleDraft     ScheduleStatus = "DRAFT"
	SchedulePublished ScheduleStatus = "PUBLISHED"
	ScheduleArchived  ScheduleStatus = "ARCHIVED"
)

// Demand is a surgical case requiring staffing. The row doubles as the
// assignment record: the solver writes member_id and the per-allocation
// result back onto the same Demand.
type Demand struct {
	ID                    string
	TenantID              string
	HospitalID            *string
	JobID                 *string
	Room                  *string
	StartTime             time.Time
	EndTime               time.Time
	Procedure             string
	AnesthesiaType        *string
	Complexity            *string
	Skills                []string
	Priority              *string
	IsPediatric           bool
	Notes                 *string
	Source                map[string]any
	ScheduleStatus        *ScheduleStatus
	ScheduleName          *string
	ScheduleVersionNumber int
	ScheduleResultData    map[string]any
	MemberID              *string
	PdfFileID             *string
	GeneratedAt           *time.Time
	PublishedAt           *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// AuditLog rows are append-only and written best-effort: a failed audit
// write never aborts the business transaction it describes.
type AuditLog struct {
	ID        string
	TenantID  *string
	AccountID string
	MemberID  *string
	EventType string
	Data      map[string]any
	CreatedAt time.Time
}

// Decode round-trips a JSON-shaped map into a typed struct. Job inputs and
// extraction results are persisted as opaque JSON; this is the boundary
// where they regain a type.
func Decode(in map[string]any, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return BadRequest("malformed payload: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return BadRequest("malformed payload: %v", err)
	}
	return nil
}

// Encode converts a typed value into the JSON-shaped map persisted at the
// storage boundary.
func Encode(in any) (map[string]any, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, Internal("encode payload: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, Internal("encode payload: %v", err)
	}
	return out, nil
}
