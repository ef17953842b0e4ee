package marker

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clawbox-1.provisioned")

	m := Marker{
		VMName:        "clawbox-1",
		Profile:       ProfileDeveloper,
		Playwright:    true,
		SyncBackend:   SyncBackendMutagen,
		ProvisionedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	if err := Write(m, path); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got == nil {
		t.Fatal("Read returned nil marker")
	}
	if got.VMName != m.VMName || got.Profile != m.Profile || got.Playwright != m.Playwright || got.SyncBackend != m.SyncBackend {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, m)
	}
	if !got.ProvisionedAt.Equal(m.ProvisionedAt) {
		t.Fatalf("ProvisionedAt mismatch: got %v, want %v", got.ProvisionedAt, m.ProvisionedAt)
	}
}

func TestReadMissingReturnsNilNil(t *testing.T) {
	got, err := Read(filepath.Join(t.TempDir(), "nonexistent.provisioned"))
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil marker, got %+v", got)
	}
}

func TestReadMalformedLineIsParseError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clawbox-2.provisioned")
	writeRaw(t, path, "vm_name: clawbox-2\nprofile standard\n")

	_, err := Read(path)
	if err == nil {
		t.Fatal("expected a parse error")
	}
	pe, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("expected *ParseError, got %T: %v", err, err)
	}
	if pe.Line != 2 {
		t.Fatalf("expected error on line 2, got %d", pe.Line)
	}
}

func TestReadMissingRequiredFieldIsParseError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clawbox-3.provisioned")
	writeRaw(t, path, "profile: standard\n")

	_, err := Read(path)
	if _, ok := err.(*ParseError); !ok {
		t.Fatalf("expected a *ParseError for missing vm_name, got %T: %v", err, err)
	}
}

func TestReadIgnoresUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clawbox-4.provisioned")
	writeRaw(t, path, "vm_name: clawbox-4\nprofile: standard\nfuture_field: 123\n")

	m, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if m.VMName != "clawbox-4" {
		t.Fatalf("unexpected marker: %+v", m)
	}
}

func TestMatchesIgnoresTimestampAndSyncBackend(t *testing.T) {
	m := Marker{
		VMName:        "clawbox-5",
		Profile:       ProfileStandard,
		SyncBackend:   SyncBackendMutagen,
		ProvisionedAt: time.Now(),
	}
	u := UpOptions{Profile: ProfileStandard}

	if !Matches(m, u) {
		t.Fatal("expected matching marker and options to match")
	}
}

func TestMatchesDetectsProfileUpgrade(t *testing.T) {
	m := Marker{VMName: "clawbox-6", Profile: ProfileStandard}
	u := UpOptions{Profile: ProfileDeveloper}

	if Matches(m, u) {
		t.Fatal("expected a profile upgrade to mismatch")
	}
}

func TestMatchesDetectsFeatureFlagChange(t *testing.T) {
	m := Marker{VMName: "clawbox-7", Profile: ProfileStandard, Playwright: false}
	u := UpOptions{Profile: ProfileStandard, Playwright: true}

	if Matches(m, u) {
		t.Fatal("expected a feature flag change to mismatch")
	}
}

func TestIsLegacyDeveloper(t *testing.T) {
	legacy := Marker{Profile: ProfileDeveloper, SyncBackend: SyncBackendNone}
	if !IsLegacyDeveloper(legacy) {
		t.Fatal("expected developer marker without sync_backend to be legacy")
	}

	current := Marker{Profile: ProfileDeveloper, SyncBackend: SyncBackendMutagen}
	if IsLegacyDeveloper(current) {
		t.Fatal("expected developer marker with sync_backend to not be legacy")
	}

	standard := Marker{Profile: ProfileStandard, SyncBackend: SyncBackendNone}
	if IsLegacyDeveloper(standard) {
		t.Fatal("expected standard marker to never be legacy-developer")
	}
}

func writeRaw(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
}
