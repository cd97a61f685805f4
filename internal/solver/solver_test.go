package solver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/evanofslack/ipv64-dns01/internal/config"
	"github.com/evanofslack/ipv64-dns01/internal/metrics"
	"github.com/evanofslack/ipv64-dns01/internal/provider/ipv64"
)

type call struct {
	Op      string
	Name    string
	Content string
}

type MockRecordManager struct {
	calls     []call
	addErr    map[string]error
	removeErr map[string]error
	ctxErrs   []error
}

func (m *MockRecordManager) AddRecord(ctx context.Context, fqdn, content string) error {
	m.calls = append(m.calls, call{"add", fqdn, content})
	return m.addErr[fqdn]
}

func (m *MockRecordManager) RemoveRecord(ctx context.Context, fqdn, content string) error {
	m.calls = append(m.calls, call{"remove", fqdn, content})
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	return m.removeErr[fqdn]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testChallenges = []Challenge{
	ForDomain("example.com", "aaa"),
	ForDomain("www.example.com", "bbb"),
	ForDomain("api.example.com", "ccc"),
}

func TestForDomain(t *testing.T) {
	tests := []struct {
		domain string
		want   string
	}{
		{"example.com", "_acme-challenge.example.com"},
		{"*.example.com", "_acme-challenge.example.com"},
		{"*.sub.example.com", "_acme-challenge.sub.example.com"},
		{"sub.example.com.", "_acme-challenge.sub.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			ch := ForDomain(tt.domain, "token")
			if ch.Domain != tt.domain {
				t.Errorf("Domain = %q, want %q", ch.Domain, tt.domain)
			}
			if ch.ValidationName != tt.want {
				t.Errorf("ValidationName = %q, want %q", ch.ValidationName, tt.want)
			}
			if ch.Validation != "token" {
				t.Errorf("Validation = %q, want token", ch.Validation)
			}
		})
	}
}

func TestPerform(t *testing.T) {
	rejected := errors.New("rejected")
	tests := []struct {
		name      string
		addErr    map[string]error
		expectErr bool
	}{
		{name: "success"},
		{name: "failure", addErr: map[string]error{"_acme-challenge.example.com": rejected}, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := &MockRecordManager{addErr: tt.addErr}
			s := New(records, discardLogger(), metrics.New(false))

			err := s.Perform(context.Background(), testChallenges[0])
			if tt.expectErr {
				if !errors.Is(err, rejected) {
					t.Fatalf("expected wrapped provider error, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			want := call{"add", "_acme-challenge.example.com", "aaa"}
			if len(records.calls) != 1 || records.calls[0] != want {
				t.Errorf("calls = %+v, want [%+v]", records.calls, want)
			}
		})
	}
}

func TestPerformAll_StopsAtFirstFailure(t *testing.T) {
	records := &MockRecordManager{addErr: map[string]error{
		"_acme-challenge.www.example.com": errors.New("zone not found"),
	}}
	s := New(records, discardLogger(), metrics.New(false))

	results, err := s.PerformAll(context.Background(), testChallenges)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if len(results.Performed) != 1 || results.Performed[0] != testChallenges[0] {
		t.Errorf("performed = %+v, want only the first challenge", results.Performed)
	}
	if len(results.Failures) != 1 || results.Failures[0].Op != "present" {
		t.Errorf("unexpected failures %+v", results.Failures)
	}
	if len(records.calls) != 2 {
		t.Errorf("expected 2 add calls, got %d", len(records.calls))
	}
}

func TestCleanUpAll_ContinuesAfterFailures(t *testing.T) {
	records := &MockRecordManager{removeErr: map[string]error{
		"_acme-challenge.example.com":     errors.New("unauthorized"),
		"_acme-challenge.www.example.com": errors.New("record not found"),
	}}
	s := New(records, discardLogger(), metrics.New(false))

	results := s.CleanUpAll(context.Background(), testChallenges)

	if len(records.calls) != len(testChallenges) {
		t.Fatalf("expected %d remove calls, got %d", len(testChallenges), len(records.calls))
	}
	if len(results.Failures) != 2 {
		t.Errorf("expected 2 failures, got %d", len(results.Failures))
	}
	if len(results.CleanedUp) != 1 || results.CleanedUp[0] != testChallenges[2] {
		t.Errorf("cleaned = %+v, want only the last challenge", results.CleanedUp)
	}
}

func TestCleanUpAll_UnauthorizedProvider(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"info":"Unauthorized"}`)
	}))
	defer srv.Close()

	m := metrics.New(false)
	client, err := ipv64.New(config.IPv64{BearerToken: "0123456789abcdef0123456789abcdef"}, discardLogger(), m, ipv64.WithEndpoint(srv.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := New(client, discardLogger(), m)

	results := s.CleanUpAll(context.Background(), testChallenges)

	if int(hits.Load()) != len(testChallenges) {
		t.Errorf("expected a delete request per challenge, got %d", hits.Load())
	}
	if len(results.Failures) != len(testChallenges) {
		t.Fatalf("expected every cleanup to fail, got %d failures", len(results.Failures))
	}
	for _, f := range results.Failures {
		if f.Op != "cleanup" {
			t.Errorf("unexpected op %q", f.Op)
		}
	}

	// The same provider is fatal on the perform side.
	err = s.Perform(context.Background(), testChallenges[0])
	if !errors.Is(err, ipv64.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized from Perform, got %v", err)
	}
}

func TestChallengeIDStable(t *testing.T) {
	a := challengeID(testChallenges[0])
	if a != challengeID(ForDomain("example.com", "aaa")) {
		t.Error("expected the same id for the same challenge")
	}
	if a == challengeID(testChallenges[1]) {
		t.Error("expected different ids for different challenges")
	}
}
