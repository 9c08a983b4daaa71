package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"discordarchive/internal/database"
	"discordarchive/internal/discord"
	"discordarchive/internal/files"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDiscord serves the pins API and attachment downloads from one server.
type fakeDiscord struct {
	t   *testing.T
	srv *httptest.Server

	mu              sync.Mutex
	pins            func(base string) string
	pinsStatus      int
	deleteScript    map[string][]int
	deleteCalls     []string
	deleteTimes     []time.Time
	attachmentCalls []string
}

func newFakeDiscord(t *testing.T) *fakeDiscord {
	f := &fakeDiscord{t: t, pinsStatus: http.StatusOK, deleteScript: map[string][]int{}}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v9/channels/{channel}/pins", func(w http.ResponseWriter, r *http.Request) {
		if f.pinsStatus != http.StatusOK {
			http.Error(w, `{"message":"nope"}`, f.pinsStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, f.pins(f.srv.URL))
	})
	mux.HandleFunc("DELETE /api/v9/channels/{channel}/pins/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		f.mu.Lock()
		f.deleteCalls = append(f.deleteCalls, id)
		f.deleteTimes = append(f.deleteTimes, time.Now())
		status := http.StatusNoContent
		if queue := f.deleteScript[id]; len(queue) > 0 {
			status = queue[0]
			f.deleteScript[id] = queue[1:]
		}
		f.mu.Unlock()

		if status == http.StatusTooManyRequests {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			io.WriteString(w, `{"message":"You are being rate limited.","retry_after":1,"global":false}`)
			return
		}
		w.WriteHeader(status)
	})
	mux.HandleFunc("GET /attachments/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.attachmentCalls = append(f.attachmentCalls, r.URL.Path)
		f.mu.Unlock()
		io.WriteString(w, "bytes of "+r.URL.Path)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeDiscord) client() *discord.Client {
	return discord.NewClient(discord.Options{
		BaseURL:           f.srv.URL + "/api/v9",
		Token:             "token",
		UserAgent:         "test-agent",
		RequestsPerMinute: 6000,
		Timeout:           5 * time.Second,
		Logger:            log.New(io.Discard),
	})
}

func twoPins(base string) string {
	return fmt.Sprintf(`[
		{"id":"1","channel_id":"123","content":"a cat","timestamp":"2024-04-30T09:15:00.000000+00:00","author":{"id":"42","username":"ada"},"attachments":[{"id":"a1","filename":"cat.png","content_type":"image/png","size":37,"proxy_url":"%s/attachments/123/1/cat.png?ex=ff"}]},
		{"id":"2","channel_id":"123","attachments":[]}
	]`, base)
}

func threePins(string) string {
	return `[
		{"id":"p1","channel_id":"123","attachments":[]},
		{"id":"p2","channel_id":"123","attachments":[]},
		{"id":"p3","channel_id":"123","attachments":[]}
	]`
}

func newPipeline(t *testing.T, f *fakeDiscord, dir string, index Index) *PinService {
	t.Helper()
	client := f.client()
	storage := files.NewStorage(dir)
	downloader := files.NewDownloader(storage, client, log.New(io.Discard))
	return NewPinService(client, downloader, storage, index, log.New(io.Discard))
}

func TestArchivePinsEndToEnd(t *testing.T) {
	f := newFakeDiscord(t)
	f.pins = twoPins
	dir := t.TempDir()

	result, err := newPipeline(t, f, dir, nil).ArchivePins(context.Background(), "123")
	require.NoError(t, err)

	snapshots, err := filepath.Glob(filepath.Join(dir, "json", "pins-123-*.json"))
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, snapshots[0], result.SnapshotPath)

	data, err := os.ReadFile(snapshots[0])
	require.NoError(t, err)
	var entries []map[string]any
	require.NoError(t, json.Unmarshal(data, &entries))
	assert.Len(t, entries, 2)
	assert.JSONEq(t, twoPins(f.srv.URL), string(data))

	var downloaded []string
	err = filepath.Walk(filepath.Join(dir, "static"), func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			downloaded = append(downloaded, path)
		}
		return err
	})
	require.NoError(t, err)
	require.Len(t, downloaded, 1)
	assert.Equal(t, filepath.Join(dir, "static", "127.0.0.1", "attachments", "123", "1", "cat.png"), downloaded[0])

	assert.Equal(t, 1, result.Attachments)
	assert.Equal(t, 1, result.Downloaded)
	assert.Equal(t, []string{"/attachments/123/1/cat.png"}, f.attachmentCalls)
}

func TestArchivePinsSecondRunSkipsExistingAttachments(t *testing.T) {
	f := newFakeDiscord(t)
	f.pins = twoPins
	dir := t.TempDir()
	svc := newPipeline(t, f, dir, nil)

	_, err := svc.ArchivePins(context.Background(), "123")
	require.NoError(t, err)
	result, err := svc.ArchivePins(context.Background(), "123")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Downloaded)
	assert.Len(t, f.attachmentCalls, 1, "second run must not refetch")

	snapshots, err := filepath.Glob(filepath.Join(dir, "json", "pins-123-*.json"))
	require.NoError(t, err)
	assert.Len(t, snapshots, 2, "each run writes its own snapshot")
}

func TestArchivePinsFetchFailureIsFatal(t *testing.T) {
	f := newFakeDiscord(t)
	f.pinsStatus = http.StatusUnauthorized
	dir := t.TempDir()

	_, err := newPipeline(t, f, dir, nil).ArchivePins(context.Background(), "123")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, discord.StatusCode(err))

	_, statErr := os.Stat(filepath.Join(dir, "json"))
	assert.True(t, os.IsNotExist(statErr), "no snapshot on fetch failure")
}

func TestArchivePinsAttachmentFailureIsFatal(t *testing.T) {
	f := newFakeDiscord(t)
	f.pins = func(base string) string {
		return fmt.Sprintf(`[{"id":"1","channel_id":"123","attachments":[{"proxy_url":"%s/gone/x.png"}]}]`, base)
	}

	_, err := newPipeline(t, f, t.TempDir(), nil).ArchivePins(context.Background(), "123")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, discord.StatusCode(err))
}

func TestArchivePinsRecordsIndex(t *testing.T) {
	f := newFakeDiscord(t)
	f.pins = twoPins
	dir := t.TempDir()

	db, err := database.New(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	result, err := newPipeline(t, f, dir, db).ArchivePins(ctx, "123")
	require.NoError(t, err)

	snaps, err := db.ListSnapshots(ctx, "123")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, result.SnapshotPath, snaps[0].Path)
	assert.Equal(t, 2, snaps[0].PinCount)

	att, err := db.GetAttachment(ctx, f.srv.URL+"/attachments/123/1/cat.png?ex=ff")
	require.NoError(t, err)
	assert.Equal(t, "1", att.PinID)
	assert.True(t, strings.HasSuffix(att.LocalPath, "cat.png"))
	assert.Len(t, att.Checksum, 64)
	assert.Equal(t, "cat.png", att.FileName)
	assert.Equal(t, "image/png", att.ContentType)
	assert.Equal(t, int64(37), att.DeclaredSize)
	assert.Equal(t, int64(len("bytes of /attachments/123/1/cat.png")), att.SizeBytes)

	posted, err := db.GetPin(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "42", posted.AuthorID)
	assert.Equal(t, "ada", posted.AuthorName)
	assert.Equal(t, "a cat", posted.Content)
	assert.Equal(t, "2024-04-30T09:15:00.000000+00:00", posted.PostedAt)
	assert.Equal(t, 1, posted.AttachmentCount)

	d := NewDeleter(f.client(), db, log.New(io.Discard))
	d.timer = &recordingTimer{}
	_, err = d.DeletePins(ctx, "123", result.Pins.Pins)
	require.NoError(t, err)

	pin, err := db.GetPin(ctx, "2")
	require.NoError(t, err)
	assert.True(t, pin.DeletedAt.Valid)
}

func TestArchiveThenDeleteWithRateLimit(t *testing.T) {
	f := newFakeDiscord(t)
	f.pins = threePins
	f.deleteScript["p2"] = []int{http.StatusTooManyRequests}

	ctx := context.Background()
	result, err := newPipeline(t, f, t.TempDir(), nil).ArchivePins(ctx, "123")
	require.NoError(t, err)

	d := NewDeleter(f.client(), nil, log.New(io.Discard))
	timer := &recordingTimer{}
	d.timer = timer

	summary, err := d.DeletePins(ctx, "123", result.Pins.Pins)
	require.NoError(t, err)

	assert.Equal(t, []string{"p1", "p2", "p2", "p3"}, f.deleteCalls)
	assert.Equal(t, []time.Duration{time.Second}, timer.waits)
	assert.Equal(t, DeleteSummary{Deleted: 3}, summary)
}

func TestDeleteWithRealBackoff(t *testing.T) {
	if testing.Short() {
		t.Skip("sleeps for the server's retry_after")
	}

	f := newFakeDiscord(t)
	f.deleteScript["p2"] = []int{http.StatusTooManyRequests, http.StatusTooManyRequests}

	d := NewDeleter(f.client(), nil, log.New(io.Discard))
	pins := []discord.Pin{{ID: "p1", ChannelID: "123"}, {ID: "p2", ChannelID: "123"}, {ID: "p3", ChannelID: "123"}}

	summary, err := d.DeletePins(context.Background(), "123", pins)
	require.NoError(t, err)

	require.Equal(t, []string{"p1", "p2", "p2", "p3"}, f.deleteCalls)
	assert.GreaterOrEqual(t, f.deleteTimes[2].Sub(f.deleteTimes[1]), time.Second)
	assert.Equal(t, DeleteSummary{Deleted: 2, Failed: 1}, summary)
}
