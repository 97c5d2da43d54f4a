package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hms/console/internal/platform/apiclient"
)

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", credentialsFileName)

	s, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	if !s.Load().Empty() {
		t.Fatal("expected an empty store for a missing file")
	}

	s.SetServer("https://hms.example.org")
	s.Save(apiclient.TokenPair{AccessToken: "a", RefreshToken: "r"})
	s.SaveRedirect("/examination/history/42")
	if err := s.Err(); err != nil {
		t.Fatalf("write: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected mode 0600, got %o", perm)
	}

	reopened, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := reopened.Load(); got.AccessToken != "a" || got.RefreshToken != "r" {
		t.Errorf("unexpected tokens: %+v", got)
	}
	if reopened.LoadRedirect() != "/examination/history/42" {
		t.Errorf("unexpected redirect: %q", reopened.LoadRedirect())
	}
	if reopened.Server() != "https://hms.example.org" {
		t.Errorf("unexpected server: %q", reopened.Server())
	}
}

func TestFileStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), credentialsFileName)
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenFileStore(path); err == nil {
		t.Error("expected a parse error")
	}
}
