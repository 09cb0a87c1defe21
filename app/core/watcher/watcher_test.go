package watcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"minutesbot/app/core/drive"
	"minutesbot/app/pkg/kvstate"
)

type fakeDrive struct {
	mu       sync.Mutex
	files    []drive.File
	contents map[string]string
	renames  map[string]string
	watches  int
	stops    []string
	stopDLs  []time.Time
	listErr  error
	dlErr    map[string]error
	watchErr error
}

func newFakeDrive(files ...drive.File) *fakeDrive {
	fd := &fakeDrive{files: files, contents: map[string]string{}, renames: map[string]string{}, dlErr: map[string]error{}}
	for _, f := range files {
		fd.contents[f.ID] = "transcript of " + f.Name
	}
	return fd
}

func (f *fakeDrive) List(_ context.Context, _, _ string, _ int) ([]drive.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]drive.File, len(f.files))
	copy(out, f.files)
	return out, nil
}

func (f *fakeDrive) Download(_ context.Context, fileID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.dlErr[fileID]; err != nil {
		return nil, err
	}
	return []byte(f.contents[fileID]), nil
}

func (f *fakeDrive) Rename(_ context.Context, fileID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renames[fileID] = name
	for i := range f.files {
		if f.files[i].ID == fileID {
			f.files[i].Name = name
		}
	}
	return nil
}

func (f *fakeDrive) Upload(context.Context, string, string, string, []byte) (string, string, error) {
	return "", "", errors.New("not used")
}

func (f *fakeDrive) Watch(_ context.Context, folderID, _, _ string) (drive.WatchChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watchErr != nil {
		return drive.WatchChannel{}, f.watchErr
	}
	f.watches++
	return drive.WatchChannel{ID: "ch-" + folderID, ResourceID: "res1"}, nil
}

func (f *fakeDrive) Stop(ctx context.Context, ch drive.WatchChannel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		f.stopDLs = append(f.stopDLs, dl)
	}
	f.stops = append(f.stops, ch.ID)
	return nil
}

type fakeIngester struct {
	mu    sync.Mutex
	runs  []string
	fail  map[string]bool
	texts []string
}

func (f *fakeIngester) RunFromText(_ context.Context, _, text, title, channel, datetimeStr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[title] {
		return errors.New("pipeline failed")
	}
	f.runs = append(f.runs, title+"@"+channel+"@"+datetimeStr)
	f.texts = append(f.texts, text)
	return nil
}

func testWatcher(fd *fakeDrive, fi *fakeIngester, cfg Config) *Watcher {
	if cfg.FolderID == "" {
		cfg.FolderID = "folder1"
	}
	if cfg.Channel == "" {
		cfg.Channel = "C1"
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Hour
	}
	w := New(cfg, fd, fi, kvstate.NewMemory[drive.WatchChannel]())
	return w.WithClock(func() time.Time {
		return time.Date(2026, 10, 20, 14, 30, 0, 0, time.UTC)
	})
}

func TestScanIngestsAndMarksProcessed(t *testing.T) {
	fd := newFakeDrive(drive.File{ID: "f1", Name: "週次定例.txt", MimeType: "text/plain"})
	fi := &fakeIngester{}
	w := testWatcher(fd, fi, Config{})

	if err := w.scan(context.Background()); err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	if len(fi.runs) != 1 {
		t.Fatalf("expected one ingest, got %d", len(fi.runs))
	}
	if fi.runs[0] != "週次定例@C1@2026年10月20日 | 14:30" {
		t.Fatalf("unexpected ingest parameters: %q", fi.runs[0])
	}
	if !strings.Contains(fi.texts[0], "transcript of") {
		t.Fatalf("downloaded content must reach the pipeline, got %q", fi.texts[0])
	}
	if fd.renames["f1"] != "processed_週次定例.txt" {
		t.Fatalf("file must be renamed with the processed marker, got %q", fd.renames["f1"])
	}
}

func TestScanSkipsProcessedFiles(t *testing.T) {
	fd := newFakeDrive(
		drive.File{ID: "f1", Name: "processed_old.txt"},
		drive.File{ID: "f2", Name: "new.txt"},
	)
	fi := &fakeIngester{}
	w := testWatcher(fd, fi, Config{})

	if err := w.scan(context.Background()); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(fi.runs) != 1 || !strings.HasPrefix(fi.runs[0], "new@") {
		t.Fatalf("only the unprocessed file may ingest, got %v", fi.runs)
	}
}

func TestScanPipelineFailureLeavesFileUnmarked(t *testing.T) {
	fd := newFakeDrive(
		drive.File{ID: "f1", Name: "broken.txt"},
		drive.File{ID: "f2", Name: "healthy.txt"},
	)
	fi := &fakeIngester{fail: map[string]bool{"broken": true}}
	w := testWatcher(fd, fi, Config{})

	if err := w.scan(context.Background()); err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	if _, renamed := fd.renames["f1"]; renamed {
		t.Fatal("a failed ingest must leave the file eligible for retry")
	}
	if fd.renames["f2"] != "processed_healthy.txt" {
		t.Fatal("the healthy file must still be ingested and marked")
	}
}

func TestScanDownloadFailureContinues(t *testing.T) {
	fd := newFakeDrive(
		drive.File{ID: "f1", Name: "a.txt"},
		drive.File{ID: "f2", Name: "b.txt"},
	)
	fd.dlErr["f1"] = errors.New("network")
	fi := &fakeIngester{}
	w := testWatcher(fd, fi, Config{})

	if err := w.scan(context.Background()); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(fi.runs) != 1 || !strings.HasPrefix(fi.runs[0], "b@") {
		t.Fatalf("remaining files must ingest after a download failure, got %v", fi.runs)
	}
}

func TestRescanAfterMarkerSeesNothing(t *testing.T) {
	fd := newFakeDrive(drive.File{ID: "f1", Name: "once.txt"})
	fi := &fakeIngester{}
	w := testWatcher(fd, fi, Config{})

	if err := w.scan(context.Background()); err != nil {
		t.Fatalf("first scan failed: %v", err)
	}
	if err := w.scan(context.Background()); err != nil {
		t.Fatalf("second scan failed: %v", err)
	}
	if len(fi.runs) != 1 {
		t.Fatalf("marked file must not re-ingest, got %d runs", len(fi.runs))
	}
}

func TestStartSubscribesAndStopTearsDown(t *testing.T) {
	fd := newFakeDrive()
	fi := &fakeIngester{}
	w := testWatcher(fd, fi, Config{WebhookURL: "https://bot.example/drive/notifications"})

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	// Give the run-on-start poll a moment to run its (empty) scan.
	time.Sleep(20 * time.Millisecond)

	if fd.watches != 1 {
		t.Fatalf("expected one push subscription, got %d", fd.watches)
	}
	if err := w.Stop(time.Second); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if len(fd.stops) != 1 || fd.stops[0] != "ch-folder1" {
		t.Fatalf("stop must tear down the push channel, got %v", fd.stops)
	}
}

func TestStopBoundsTeardownByCallerTimeout(t *testing.T) {
	fd := newFakeDrive()
	fi := &fakeIngester{}
	w := testWatcher(fd, fi, Config{WebhookURL: "https://bot.example/drive/notifications"})

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	timeout := 300 * time.Millisecond
	before := time.Now()
	if err := w.Stop(timeout); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if len(fd.stopDLs) != 1 {
		t.Fatalf("channel teardown must carry a deadline, got %d", len(fd.stopDLs))
	}
	if remaining := fd.stopDLs[0].Sub(before); remaining > timeout+50*time.Millisecond {
		t.Fatalf("teardown deadline %v exceeds the caller timeout %v", remaining, timeout)
	}
}

func TestWatchFailureFallsBackToPolling(t *testing.T) {
	fd := newFakeDrive(drive.File{ID: "f1", Name: "poll.txt"})
	fd.watchErr = errors.New("watch unsupported")
	fi := &fakeIngester{}
	w := testWatcher(fd, fi, Config{WebhookURL: "https://bot.example/x", PollInterval: 15 * time.Millisecond})

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start must survive a subscribe failure: %v", err)
	}
	defer func() { _ = w.Stop(time.Second) }()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		fi.mu.Lock()
		n := len(fi.runs)
		fi.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("poll backstop never ingested the file")
}

func TestTriggerScanCoalesces(t *testing.T) {
	fd := newFakeDrive()
	fi := &fakeIngester{}
	w := testWatcher(fd, fi, Config{})

	// Queue not started: the buffer holds one job and further triggers drop.
	w.TriggerScan()
	w.TriggerScan()
	w.TriggerScan()

	if stats := w.scans.Stats(); stats.Enqueued != 1 || stats.Dropped != 2 {
		t.Fatalf("expected 1 enqueued / 2 dropped, got %+v", stats)
	}
}
