package store

import "context"

// The schema is the persistence boundary. Statements are idempotent so a
// restart against an existing database is a no-op.
const schema = `
CREATE TABLE IF NOT EXISTS tenant (
	id          text PRIMARY KEY,
	name        text NOT NULL,
	label       text,
	timezone    text NOT NULL DEFAULT 'UTC',
	locale      text NOT NULL DEFAULT 'en-US',
	currency    text NOT NULL DEFAULT 'USD',
	created_at  timestamptz NOT NULL,
	updated_at  timestamptz NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_tenant_label ON tenant (label) WHERE label IS NOT NULL;

CREATE TABLE IF NOT EXISTS account (
	id            text PRIMARY KEY,
	email         text NOT NULL UNIQUE,
	name          text NOT NULL DEFAULT '',
	auth_provider text NOT NULL DEFAULT '',
	role          text NOT NULL DEFAULT 'account',
	created_at    timestamptz NOT NULL,
	updated_at    timestamptz NOT NULL
);

CREATE TABLE IF NOT EXISTS member (
	id          text PRIMARY KEY,
	tenant_id   text NOT NULL REFERENCES tenant(id),
	account_id  text REFERENCES account(id),
	email       text,
	role        text NOT NULL DEFAULT 'account',
	status      text NOT NULL DEFAULT 'PENDING',
	name        text,
	can_peds    boolean NOT NULL DEFAULT false,
	sequence    integer NOT NULL DEFAULT 0,
	vacation    jsonb,
	attribute   jsonb,
	created_at  timestamptz NOT NULL,
	updated_at  timestamptz NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_member_tenant_account
	ON member (tenant_id, account_id) WHERE account_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS ux_member_tenant_email_pending
	ON member (tenant_id, email) WHERE account_id IS NULL AND status = 'PENDING';
CREATE INDEX IF NOT EXISTS ix_member_account_status ON member (account_id, status);

CREATE TABLE IF NOT EXISTS hospital (
	id          text PRIMARY KEY,
	tenant_id   text NOT NULL REFERENCES tenant(id),
	name        text NOT NULL,
	label       text,
	prompt      text,
	color       text,
	created_at  timestamptz NOT NULL,
	updated_at  timestamptz NOT NULL,
	UNIQUE (tenant_id, name)
);

CREATE TABLE IF NOT EXISTS file (
	id           text PRIMARY KEY,
	tenant_id    text NOT NULL REFERENCES tenant(id),
	hospital_id  text REFERENCES hospital(id),
	filename     text NOT NULL,
	content_type text NOT NULL DEFAULT '',
	blob_key     text NOT NULL UNIQUE,
	file_size    bigint NOT NULL DEFAULT 0,
	created_at   timestamptz NOT NULL
);

CREATE TABLE IF NOT EXISTS job (
	id           text PRIMARY KEY,
	tenant_id    text NOT NULL REFERENCES tenant(id),
	kind         text NOT NULL,
	status       text NOT NULL DEFAULT 'PENDING',
	input        jsonb,
	result       jsonb,
	error        text,
	created_at   timestamptz NOT NULL,
	updated_at   timestamptz NOT NULL,
	started_at   timestamptz,
	completed_at timestamptz
);
CREATE INDEX IF NOT EXISTS ix_job_tenant_kind_status ON job (tenant_id, kind, status);
CREATE INDEX IF NOT EXISTS ix_job_status_started ON job (status) WHERE started_at IS NULL;

CREATE TABLE IF NOT EXISTS demand (
	id                       text PRIMARY KEY,
	tenant_id                text NOT NULL REFERENCES tenant(id),
	hospital_id              text REFERENCES hospital(id),
	job_id                   text REFERENCES job(id) ON DELETE SET NULL,
	room                     text,
	start_time               timestamptz NOT NULL,
	end_time                 timestamptz NOT NULL,
	procedure                text NOT NULL,
	anesthesia_type          text,
	complexity               text,
	skills                   jsonb,
	priority                 text,
	is_pediatric             boolean NOT NULL DEFAULT false,
	notes                    text,
	source                   jsonb,
	schedule_status          text,
	schedule_name            text,
	schedule_version_number  integer NOT NULL DEFAULT 1,
	schedule_result_data     jsonb,
	member_id                text REFERENCES member(id),
	pdf_file_id              text REFERENCES file(id),
	generated_at             timestamptz,
	published_at             timestamptz,
	created_at               timestamptz NOT NULL,
	updated_at               timestamptz NOT NULL,
	CONSTRAINT ck_demand_end_after_start CHECK (end_time > start_time)
);
CREATE INDEX IF NOT EXISTS ix_demand_tenant_start ON demand (tenant_id, start_time);
CREATE INDEX IF NOT EXISTS ix_demand_job ON demand (job_id);

CREATE TABLE IF NOT EXISTS audit_log (
	id          text PRIMARY KEY,
	tenant_id   text,
	account_id  text NOT NULL,
	member_id   text,
	event_type  text NOT NULL,
	data        jsonb,
	created_at  timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_audit_tenant_created ON audit_log (tenant_id, created_at);
`

func (s *Store) applySchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return mapPgError("apply schema", err)
	}
	return nil
}
