package store

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/juniorbasecompany/turna/domain"
)

// The repositories themselves run against Postgres and are exercised by
// integration environments; these tests cover the codec helpers at the
// JSON boundary.

func TestJsonArgNilMapsToNull(t *testing.T) {
	v, err := jsonArg(nil)
	if err != nil || v != nil {
		t.Fatalf("jsonArg(nil) = %v/%v, want nil/nil", v, err)
	}
	var m map[string]any
	v, err = jsonArg(m)
	if err != nil || v != nil {
		t.Fatalf("jsonArg(nil map) = %v/%v, want nil/nil", v, err)
	}
	var s []string
	v, err = jsonArg(s)
	if err != nil || v != nil {
		t.Fatalf("jsonArg(nil slice) = %v/%v, want nil/nil", v, err)
	}
}

func TestJsonArgMarshals(t *testing.T) {
	v, err := jsonArg(map[string]any{"a": 1})
	if err != nil {
		t.Fatalf("jsonArg: %v", err)
	}
	raw, ok := v.([]byte)
	if !ok || string(raw) != `{"a":1}` {
		t.Fatalf("jsonArg = %s", raw)
	}
}

func TestUnmarshalHelpers(t *testing.T) {
	if m := unmarshalMap([]byte(`{"k":"v"}`)); m["k"] != "v" {
		t.Fatalf("unmarshalMap = %v", m)
	}
	if m := unmarshalMap(nil); m != nil {
		t.Fatalf("unmarshalMap(nil) = %v, want nil", m)
	}
	if s := unmarshalStrings([]byte(`["a","b"]`)); len(s) != 2 || s[0] != "a" {
		t.Fatalf("unmarshalStrings = %v", s)
	}
	v := unmarshalVacation([]byte(`[{"start":"2024-06-01T08:00:00Z","end":"2024-06-01T12:00:00Z"}]`))
	if len(v) != 1 {
		t.Fatalf("unmarshalVacation = %v", v)
	}
	want := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	if !v[0].Start.Equal(want) {
		t.Fatalf("vacation start = %v, want %v", v[0].Start, want)
	}
	// Malformed payloads degrade to nil rather than failing a read.
	if v := unmarshalVacation([]byte(`{broken`)); v != nil {
		t.Fatalf("unmarshalVacation(broken) = %v, want nil", v)
	}
}

func TestMapPgErrorNoRows(t *testing.T) {
	err := mapPgError("get job", pgx.ErrNoRows)
	if !domain.IsNotFound(err) {
		t.Fatalf("mapPgError(no rows) = %v, want NotFound", err)
	}
}
