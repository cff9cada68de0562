package zoom

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"reel/internal/creds"
	"reel/internal/services"
	"reel/internal/testsupport"
)

func TestTokenSourceRefresh(t *testing.T) {
	var gotGrant, gotAccount, gotUser, gotPass string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth/token" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotUser, gotPass, _ = r.BasicAuth()
		_ = r.ParseForm()
		gotGrant = r.FormValue("grant_type")
		gotAccount = r.FormValue("account_id")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-1",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Source.AuthBaseURL = server.URL
	source := NewTokenSource(cfg)

	token, err := source.Refresh(context.Background(), "test")
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if token.Value != "tok-1" {
		t.Errorf("token value = %q, want tok-1", token.Value)
	}
	if remaining := time.Until(token.ExpiresAt); remaining < 59*time.Minute {
		t.Errorf("expiry too soon: %v", remaining)
	}
	if gotGrant != "account_credentials" || gotAccount != "acct-test" {
		t.Errorf("grant=%q account=%q", gotGrant, gotAccount)
	}
	if gotUser != "client-test" || gotPass != "secret-test" {
		t.Errorf("basic auth = %q/%q", gotUser, gotPass)
	}
}

func TestTokenSourceRejectedCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_client"})
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Source.AuthBaseURL = server.URL
	source := NewTokenSource(cfg)

	_, err := source.Refresh(context.Background(), "test")
	if !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestTokenSourceServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Source.AuthBaseURL = server.URL
	source := NewTokenSource(cfg)

	_, err := source.Refresh(context.Background(), "test")
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestTokenSourceUnknownAccount(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	source := NewTokenSource(cfg)

	_, err := source.Refresh(context.Background(), "nobody")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

type staticSource struct {
	tokens []string
	calls  int
}

func (s *staticSource) Refresh(ctx context.Context, account string) (creds.Token, error) {
	idx := s.calls
	if idx >= len(s.tokens) {
		idx = len(s.tokens) - 1
	}
	s.calls++
	return creds.Token{Value: s.tokens[idx], ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func TestListRecordingsFollowsPagination(t *testing.T) {
	newMeeting := func(uuid string, start time.Time) Meeting {
		return Meeting{UUID: uuid, Topic: "standup", StartTime: start, Duration: 30}
	}
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	var pagesServed int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-a" {
			t.Errorf("authorization = %q", got)
		}
		if r.URL.Path != "/accounts/acct-test/recordings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		pagesServed++
		resp := listResponse{}
		if r.URL.Query().Get("next_page_token") == "" {
			resp.NextPageToken = "page2"
			resp.Meetings = []Meeting{
				newMeeting("uuid-1", now),
				newMeeting("uuid-old", now.AddDate(0, 0, -9)),
			}
		} else {
			resp.Meetings = []Meeting{newMeeting("uuid-2", now.Add(time.Hour))}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Source.APIBaseURL = server.URL
	cache := creds.NewCache(&staticSource{tokens: []string{"tok-a"}})
	client := NewClient(cfg, cache, nil)

	meetings, err := client.ListRecordings(context.Background(), "test", now.AddDate(0, 0, -7), now.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListRecordings failed: %v", err)
	}
	if pagesServed != 2 {
		t.Errorf("pages served = %d, want 2", pagesServed)
	}
	if len(meetings) != 2 {
		t.Fatalf("meetings = %d, want 2 (watermark should drop uuid-old)", len(meetings))
	}
	if meetings[0].UUID != "uuid-1" || meetings[1].UUID != "uuid-2" {
		t.Errorf("unexpected meetings %q %q", meetings[0].UUID, meetings[1].UUID)
	}
}

func TestListRecordingsRetriesOnceAfterUnauthorized(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("Authorization") != "Bearer tok-b" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(listResponse{})
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Source.APIBaseURL = server.URL
	source := &staticSource{tokens: []string{"tok-stale", "tok-b"}}
	cache := creds.NewCache(source)
	client := NewClient(cfg, cache, nil)

	if _, err := client.ListRecordings(context.Background(), "test", time.Now().Add(-time.Hour), time.Now()); err != nil {
		t.Fatalf("ListRecordings failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("server calls = %d, want 2", calls)
	}
	if source.calls != 2 {
		t.Errorf("refresh calls = %d, want 2", source.calls)
	}
}

func TestGetRecording(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/meetings/uuid-1/recordings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(Meeting{UUID: "uuid-1", Topic: "standup", Files: []RecordingFile{{ID: "f1", FileType: "MP4", Status: "completed"}}})
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Source.APIBaseURL = server.URL
	client := NewClient(cfg, creds.NewCache(&staticSource{tokens: []string{"tok-a"}}), nil)

	meeting, err := client.GetRecording(context.Background(), "test", "uuid-1")
	if err != nil {
		t.Fatalf("GetRecording failed: %v", err)
	}
	if meeting.UUID != "uuid-1" || len(meeting.Files) != 1 {
		t.Errorf("unexpected meeting %+v", meeting)
	}
}

func TestGetRecordingGoneIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Source.APIBaseURL = server.URL
	client := NewClient(cfg, creds.NewCache(&staticSource{tokens: []string{"tok-a"}}), nil)

	_, err := client.GetRecording(context.Background(), "test", "uuid-gone")
	if !errors.Is(err, services.ErrFatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
}

func TestDownloadWritesFileAtomically(t *testing.T) {
	payload := []byte("fake mp4 payload")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cache := creds.NewCache(&staticSource{tokens: []string{"tok-a"}})
	client := NewClient(cfg, cache, nil)

	dest := filepath.Join(t.TempDir(), "acct", "raw.mp4")
	file := RecordingFile{ID: "f1", DownloadURL: server.URL + "/f1", FileSize: int64(len(payload))}
	if err := client.Download(context.Background(), "test", file, dest); err != nil {
		t.Fatalf("Download failed: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("downloaded content mismatch")
	}
	if _, err := os.Stat(dest + ".partial"); !os.IsNotExist(err) {
		t.Errorf("partial file left behind")
	}
}

func TestDownloadRetriesOnceAfterUnauthorized(t *testing.T) {
	payload := []byte("payload")
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("Authorization") != "Bearer tok-fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cache := creds.NewCache(&staticSource{tokens: []string{"tok-stale", "tok-fresh"}})
	client := NewClient(cfg, cache, nil)

	dest := filepath.Join(t.TempDir(), "raw.mp4")
	file := RecordingFile{ID: "f1", DownloadURL: server.URL + "/f1", FileSize: int64(len(payload))}
	if err := client.Download(context.Background(), "test", file, dest); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("server calls = %d, want 2", calls)
	}
}

func TestDownloadShortReadIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("tiny"))
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cache := creds.NewCache(&staticSource{tokens: []string{"tok-a"}})
	client := NewClient(cfg, cache, nil)

	dest := filepath.Join(t.TempDir(), "raw.mp4")
	file := RecordingFile{ID: "f1", DownloadURL: server.URL + "/f1", FileSize: 9999}
	err := client.Download(context.Background(), "test", file, dest)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Errorf("destination should not exist after short download")
	}
}

func TestPrimaryVideoPrefersSpeakerView(t *testing.T) {
	meeting := Meeting{Files: []RecordingFile{
		{ID: "audio", FileType: "M4A", Status: "completed", FileSize: 10},
		{ID: "gallery", FileType: "MP4", Status: "completed", RecordingType: "gallery_view", FileSize: 900},
		{ID: "speaker", FileType: "MP4", Status: "completed", RecordingType: "shared_screen_with_speaker_view", FileSize: 500},
	}}
	file, ok := meeting.PrimaryVideo()
	if !ok || file.ID != "speaker" {
		t.Fatalf("PrimaryVideo = %+v ok=%v, want speaker view", file, ok)
	}

	noSpeaker := Meeting{Files: []RecordingFile{
		{ID: "gallery", FileType: "MP4", Status: "completed", RecordingType: "gallery_view", FileSize: 900},
		{ID: "small", FileType: "MP4", Status: "completed", RecordingType: "active_speaker", FileSize: 100},
	}}
	file, ok = noSpeaker.PrimaryVideo()
	if !ok || file.ID != "gallery" {
		t.Fatalf("PrimaryVideo fallback = %+v ok=%v, want largest mp4", file, ok)
	}

	if _, ok := (Meeting{}).PrimaryVideo(); ok {
		t.Fatalf("empty meeting should have no primary video")
	}
}
