package profilesync_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/edgard/personabot/internal/platform"
	"github.com/edgard/personabot/internal/profilesync"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// plainAdapter exposes no profile capabilities.
type plainAdapter struct {
	fileURL string
}

func (a *plainAdapter) Name() string   { return "test" }
func (a *plainAdapter) SelfID() string { return "bot1" }

func (a *plainAdapter) Reply(context.Context, *platform.Event, string) error { return nil }

func (a *plainAdapter) ResolveFileURL(context.Context, platform.Part) (string, error) {
	if a.fileURL == "" {
		return "", errors.New("no file url configured")
	}
	return a.fileURL, nil
}

// profileAdapter records nickname and avatar pushes.
type profileAdapter struct {
	plainAdapter
	nicknames []string
	avatars   [][]byte
	nickErr   error
}

func (a *profileAdapter) SetBotNickname(_ context.Context, name string) error {
	if a.nickErr != nil {
		return a.nickErr
	}
	a.nicknames = append(a.nicknames, name)
	return nil
}

func (a *profileAdapter) SetBotAvatar(_ context.Context, image []byte) error {
	a.avatars = append(a.avatars, append([]byte(nil), image...))
	return nil
}

func syncEvent(adapter platform.Adapter) *platform.Event {
	return &platform.Event{
		Platform: "test",
		SelfID:   "bot1",
		ChatID:   "chat1",
		SenderID: "user1",
		Adapter:  adapter,
	}
}

// writeAsset plants an avatar asset where the syncer expects it.
func writeAsset(t *testing.T, s *profilesync.Syncer, personaID string, data []byte) {
	t.Helper()

	path := s.AvatarPath(personaID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestFormatNickname(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		template  string
		personaID string
		want      string
	}{
		{"template rendered", "Bot {persona_id}", "cap", "Bot cap"},
		{"empty template falls back to the id", "", "cap", "cap"},
		{"whitespace template falls back to the id", "   ", "cap", "cap"},
		{"long name truncated", strings.Repeat("x", 70), "cap", strings.Repeat("x", 60)},
		{"truncation counts runes", strings.Repeat("ü", 70), "cap", strings.Repeat("ü", 60)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := profilesync.FormatNickname(tc.template, tc.personaID); got != tc.want {
				t.Errorf("FormatNickname(%q, %q) = %q, want %q", tc.template, tc.personaID, got, tc.want)
			}
		})
	}
}

func TestMaybeSyncDeduplicates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := profilesync.New(true, false, "{persona_id}", t.TempDir(), discardLogger())
	adapter := &profileAdapter{}
	ev := syncEvent(adapter)

	s.MaybeSync(ctx, ev, "cap", false)
	s.MaybeSync(ctx, ev, "cap", false)
	if len(adapter.nicknames) != 1 {
		t.Fatalf("nickname pushes = %d, want 1 after a duplicate switch", len(adapter.nicknames))
	}
	if adapter.nicknames[0] != "cap" {
		t.Errorf("nickname = %q, want %q", adapter.nicknames[0], "cap")
	}

	// Switching personas pushes again, and force repushes the same one.
	s.MaybeSync(ctx, ev, "butler", false)
	s.MaybeSync(ctx, ev, "butler", true)
	if got, want := adapter.nicknames, []string{"cap", "butler", "butler"}; !reflect.DeepEqual(got, want) {
		t.Errorf("nickname pushes = %v, want %v", got, want)
	}
}

func TestMaybeSyncDisabled(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := profilesync.New(false, false, "{persona_id}", t.TempDir(), discardLogger())
	adapter := &profileAdapter{}
	ev := syncEvent(adapter)

	s.MaybeSync(ctx, ev, "cap", false)
	if len(adapter.nicknames) != 0 {
		t.Fatalf("nickname pushes = %d, want 0 while syncing is disabled", len(adapter.nicknames))
	}

	// The sync subcommand forces a push regardless of configuration.
	s.MaybeSync(ctx, ev, "cap", true)
	if len(adapter.nicknames) != 1 {
		t.Errorf("nickname pushes = %d, want 1 after a forced sync", len(adapter.nicknames))
	}
}

func TestMaybeSyncWithoutCapabilities(t *testing.T) {
	t.Parallel()

	s := profilesync.New(true, true, "{persona_id}", t.TempDir(), discardLogger())
	// Must be a silent no-op for adapters without profile surfaces.
	s.MaybeSync(context.Background(), syncEvent(&plainAdapter{}), "cap", true)
}

func TestMaybeSyncRetriesAfterFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := profilesync.New(true, false, "{persona_id}", t.TempDir(), discardLogger())
	adapter := &profileAdapter{nickErr: errors.New("rate limited")}
	ev := syncEvent(adapter)

	s.MaybeSync(ctx, ev, "cap", false)
	if len(adapter.nicknames) != 0 {
		t.Fatalf("nickname pushes = %d, want 0 while the platform rejects them", len(adapter.nicknames))
	}

	// A failed push must not be cached as applied.
	adapter.nickErr = nil
	s.MaybeSync(ctx, ev, "cap", false)
	if len(adapter.nicknames) != 1 {
		t.Errorf("nickname pushes = %d, want a retry after the failure", len(adapter.nicknames))
	}
}

func TestMaybeSyncPushesAvatar(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := profilesync.New(false, true, "{persona_id}", t.TempDir(), discardLogger())
	adapter := &profileAdapter{}
	ev := syncEvent(adapter)

	// No asset yet: nothing pushed, nothing cached.
	s.MaybeSync(ctx, ev, "cap", false)
	if len(adapter.avatars) != 0 {
		t.Fatalf("avatar pushes = %d, want 0 without an asset", len(adapter.avatars))
	}

	image := []byte("fake-image-bytes")
	writeAsset(t, s, "cap", image)

	s.MaybeSync(ctx, ev, "cap", false)
	if len(adapter.avatars) != 1 || !bytes.Equal(adapter.avatars[0], image) {
		t.Errorf("avatar pushes = %v, want the asset bytes pushed once", adapter.avatars)
	}
}

func TestSaveAvatar(t *testing.T) {
	t.Parallel()

	image := []byte("fake-image-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(image)
	}))
	t.Cleanup(srv.Close)

	ctx := context.Background()

	tests := []struct {
		name    string
		parts   []platform.Part
		wantErr error
	}{
		{
			name:  "image part",
			parts: []platform.Part{{Kind: platform.PartImage, URL: srv.URL}},
		},
		{
			name:  "file part with image extension",
			parts: []platform.Part{{Kind: platform.PartFile, Name: "pic.PNG", URL: srv.URL}},
		},
		{
			name: "image quoted in a reply",
			parts: []platform.Part{
				{Kind: platform.PartText, Text: "use this one"},
				{Kind: platform.PartReply, Reply: []platform.Part{{Kind: platform.PartImage, URL: srv.URL}}},
			},
		},
		{
			name:    "file part with non image extension",
			parts:   []platform.Part{{Kind: platform.PartFile, Name: "doc.pdf", URL: srv.URL}},
			wantErr: profilesync.ErrUnsupportedAvatar,
		},
		{
			name:    "no attachment",
			parts:   nil,
			wantErr: profilesync.ErrNoImage,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := profilesync.New(false, false, "{persona_id}", t.TempDir(), discardLogger())
			ev := syncEvent(&plainAdapter{})
			ev.Parts = tc.parts

			path, err := s.SaveAvatar(ctx, ev, "cap")
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("SaveAvatar() error = %v, want %v", err, tc.wantErr)
				}
				if s.HasAvatar("cap") {
					t.Error("HasAvatar() = true after a rejected save")
				}
				return
			}
			if err != nil {
				t.Fatalf("SaveAvatar() error = %v, want nil", err)
			}
			if path != s.AvatarPath("cap") {
				t.Errorf("SaveAvatar() path = %q, want %q", path, s.AvatarPath("cap"))
			}
			saved, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile(%q) error = %v", path, err)
			}
			if !bytes.Equal(saved, image) {
				t.Errorf("saved asset = %q, want the downloaded bytes", saved)
			}
			if !s.HasAvatar("cap") {
				t.Error("HasAvatar() = false after a successful save")
			}
		})
	}
}

func TestSaveAvatarResolvesFileID(t *testing.T) {
	t.Parallel()

	image := []byte("fake-image-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(image)
	}))
	t.Cleanup(srv.Close)

	s := profilesync.New(false, false, "{persona_id}", t.TempDir(), discardLogger())
	ev := syncEvent(&plainAdapter{fileURL: srv.URL})
	ev.Parts = []platform.Part{{Kind: platform.PartImage, FileID: "photo-1"}}

	if _, err := s.SaveAvatar(context.Background(), ev, "cap"); err != nil {
		t.Fatalf("SaveAvatar() error = %v, want nil", err)
	}
	if !s.HasAvatar("cap") {
		t.Error("HasAvatar() = false, want the resolved download saved")
	}
}

func TestDeleteAvatar(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := profilesync.New(true, false, "{persona_id}", t.TempDir(), discardLogger())
	adapter := &profileAdapter{}
	ev := syncEvent(adapter)

	writeAsset(t, s, "cap", []byte("fake-image-bytes"))
	s.MaybeSync(ctx, ev, "cap", false)
	if len(adapter.nicknames) != 1 {
		t.Fatalf("nickname pushes = %d, want 1 before the delete", len(adapter.nicknames))
	}

	if err := s.DeleteAvatar(ctx, "cap"); err != nil {
		t.Fatalf("DeleteAvatar() error = %v, want nil", err)
	}
	if s.HasAvatar("cap") {
		t.Error("HasAvatar() = true after delete")
	}

	// Deleting forgets the cached sync, so a recreated persona pushes again.
	s.MaybeSync(ctx, ev, "cap", false)
	if len(adapter.nicknames) != 2 {
		t.Errorf("nickname pushes = %d, want a fresh push after delete", len(adapter.nicknames))
	}

	// Nothing left to delete is not an error.
	if err := s.DeleteAvatar(ctx, "cap"); err != nil {
		t.Errorf("DeleteAvatar() on a missing asset error = %v, want nil", err)
	}
}

func TestAssets(t *testing.T) {
	t.Parallel()

	s := profilesync.New(false, false, "{persona_id}", t.TempDir(), discardLogger())

	ids, err := s.Assets()
	if err != nil {
		t.Fatalf("Assets() error = %v, want nil", err)
	}
	if len(ids) != 0 {
		t.Fatalf("Assets() = %v, want none before any save", ids)
	}

	writeAsset(t, s, "cap", []byte("a"))
	writeAsset(t, s, "butler", []byte("b"))

	ids, err = s.Assets()
	if err != nil {
		t.Fatalf("Assets() error = %v, want nil", err)
	}
	if want := []string{"butler", "cap"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("Assets() = %v, want %v", ids, want)
	}
}
