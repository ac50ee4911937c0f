package id_test

import (
	"encoding/json"
	"sort"
	"strings"
	"testing"

	"github.com/gkouam/soulbondai-sub005/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"JobID", id.NewJobID, "job_"},
		{"DLQID", id.NewDLQID, "dlq_"},
		{"WorkerID", id.NewWorkerID, "wkr_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"JobID", id.NewJobID, id.ParseJobID},
		{"DLQID", id.NewDLQID, id.ParseDLQID},
		{"WorkerID", id.NewWorkerID, id.ParseWorkerID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestParseWithPrefix_Mismatch(t *testing.T) {
	j := id.NewJobID()
	if _, err := id.ParseDLQID(j.String()); err == nil {
		t.Fatal("expected prefix mismatch error")
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, s := range []string{"", "job", "_abc", "job_not-a-uuid"} {
		if _, err := id.Parse(s); err == nil {
			t.Errorf("Parse(%q): expected error", s)
		}
	}
}

func TestIDs_SortByCreation(t *testing.T) {
	ids := make([]string, 50)
	for i := range ids {
		ids[i] = id.NewJobID().String()
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	for i := range ids {
		if ids[i] != sorted[i] {
			t.Fatalf("ids not K-sortable at %d: %q vs %q", i, ids[i], sorted[i])
		}
	}
}

func TestJSONRoundTrip(t *testing.T) {
	type wrapper struct {
		ID id.JobID `json:"id"`
	}
	in := wrapper{ID: id.NewJobID()}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out wrapper
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.ID.String() != in.ID.String() {
		t.Errorf("got %q, want %q", out.ID, in.ID)
	}
}

func TestNilID(t *testing.T) {
	if !id.Nil.IsNil() {
		t.Fatal("Nil should be nil")
	}
	if id.Nil.String() != "" {
		t.Errorf("Nil.String() = %q, want empty", id.Nil.String())
	}
	v, err := id.Nil.Value()
	if err != nil || v != nil {
		t.Errorf("Nil.Value() = %v, %v; want nil, nil", v, err)
	}
}

func TestScan(t *testing.T) {
	orig := id.NewDLQID()
	var got id.ID
	if err := got.Scan(orig.String()); err != nil {
		t.Fatalf("Scan string: %v", err)
	}
	if got.String() != orig.String() {
		t.Errorf("Scan = %q, want %q", got, orig)
	}
	if err := got.Scan([]byte(orig.String())); err != nil {
		t.Fatalf("Scan bytes: %v", err)
	}
	if err := got.Scan(42); err == nil {
		t.Fatal("expected error scanning int")
	}
}
