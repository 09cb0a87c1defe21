// Package watcher ingests transcripts dropped into a Drive folder. Two
// triggers feed it: push notifications relayed by the HTTP surface and a
// periodic poll that covers missed or expired channels. Both coalesce onto a
// single-worker scan queue, so at most one scan runs at a time.
//
// A file is committed by renaming it with the processed_ prefix after its
// draft is posted. A crash between post and rename re-ingests the file on
// the next scan; the duplicate draft is visible and harmless, whereas the
// reverse order could lose a recording silently.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"minutesbot/app/core/drive"
	"minutesbot/app/core/queue"
	"minutesbot/app/core/scheduler"
	"minutesbot/app/pkg/kvstate"
	"minutesbot/app/pkg/logger"
)

const (
	processedPrefix = "processed_"
	transcriptMime  = "text/plain"
	datetimeLayout  = "2006年01月02日 | 15:04"
)

// Ingester is the text entry point of the draft pipeline.
type Ingester interface {
	RunFromText(ctx context.Context, draftID, text, title, channel, datetimeStr string) error
}

type Config struct {
	// FolderID is the watched Drive folder.
	FolderID string
	// Channel receives the posted drafts.
	Channel string
	// PollInterval is the backstop scan period. Defaults to a minute.
	PollInterval time.Duration
	// WebhookURL, when set, registers a push channel pointing at the
	// notifications endpoint. Polling runs either way.
	WebhookURL   string
	WebhookToken string
	// ScanPageSize bounds how many folder entries one scan examines.
	ScanPageSize int
}

type Watcher struct {
	cfg      Config
	drive    drive.Client
	ingester Ingester
	channels kvstate.Store[drive.WatchChannel]
	sched    *scheduler.Scheduler
	scans    *queue.Queue
	now      func() time.Time
}

func New(cfg Config, driveClient drive.Client, ingester Ingester, channels kvstate.Store[drive.WatchChannel]) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.ScanPageSize <= 0 {
		cfg.ScanPageSize = 10
	}
	return &Watcher{
		cfg:      cfg,
		drive:    driveClient,
		ingester: ingester,
		channels: channels,
		sched:    scheduler.New(),
		scans:    queue.New(1),
		now:      time.Now,
	}
}

// WithClock overrides the wall clock.
func (w *Watcher) WithClock(now func() time.Time) *Watcher {
	w.now = now
	return w
}

func (w *Watcher) Start(ctx context.Context) error {
	if err := w.scans.Start(ctx, 1); err != nil {
		return err
	}
	err := w.sched.Register(scheduler.JobSpec{
		Name:       "drive-poll",
		Interval:   w.cfg.PollInterval,
		RunOnStart: true,
		Run: func(context.Context) error {
			w.TriggerScan()
			return nil
		},
	})
	if err != nil {
		return err
	}
	if err := w.sched.Start(ctx); err != nil {
		return err
	}

	if w.cfg.WebhookURL != "" {
		w.subscribe(ctx)
	}
	return nil
}

// subscribe registers the push channel. A failure only logs; the poll loop
// already covers the folder.
func (w *Watcher) subscribe(ctx context.Context) {
	ch, err := w.drive.Watch(ctx, w.cfg.FolderID, w.cfg.WebhookURL, w.cfg.WebhookToken)
	if err != nil {
		logger.Warn("watcher: push subscribe failed, polling only: %v", err)
		return
	}
	if !w.channels.CreateIfAbsent(w.cfg.FolderID, ch) {
		// Another subscriber won the claim; drop the extra channel.
		if err := w.drive.Stop(ctx, ch); err != nil {
			logger.Warn("watcher: stop duplicate channel %s: %v", ch.ID, err)
		}
		return
	}
	logger.Info("watcher: push channel %s registered for folder %s", ch.ID, w.cfg.FolderID)
}

// TriggerScan requests a scan. A trigger arriving while one scan runs and
// another waits is dropped; the waiting scan will observe the change.
func (w *Watcher) TriggerScan() {
	w.scans.TryEnqueue(queue.Job{ID: "scan-" + uuid.NewString(), Run: w.scan})
}

func (w *Watcher) scan(ctx context.Context) error {
	files, err := w.drive.List(ctx, w.cfg.FolderID, transcriptMime, w.cfg.ScanPageSize)
	if err != nil {
		return fmt.Errorf("watcher: list folder %s: %w", w.cfg.FolderID, err)
	}

	for _, f := range files {
		if strings.HasPrefix(f.Name, processedPrefix) {
			continue
		}
		if err := w.ingestFile(ctx, f); err != nil {
			logger.Error("watcher: ingest %s (%s): %v", f.Name, f.ID, err)
		}
	}
	return nil
}

func (w *Watcher) ingestFile(ctx context.Context, f drive.File) error {
	data, err := w.drive.Download(ctx, f.ID)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}

	draftID := uuid.NewString()
	title := strings.TrimSuffix(f.Name, filepath.Ext(f.Name))
	datetimeStr := w.now().Format(datetimeLayout)

	if err := w.ingester.RunFromText(ctx, draftID, string(data), title, w.cfg.Channel, datetimeStr); err != nil {
		return err
	}

	// Commit point. Failing here leaves the file eligible for re-ingest.
	if err := w.drive.Rename(ctx, f.ID, processedPrefix+f.Name); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	logger.Info("watcher: ingested %s as draft %s", f.Name, draftID)
	return nil
}

// Stop tears down push channels and joins the poll loop and any running
// scan.
func (w *Watcher) Stop(timeout time.Duration) error {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	for _, key := range w.channels.Keys() {
		ch, ok := w.channels.Get(key)
		if !ok {
			continue
		}
		if err := w.drive.Stop(ctx, ch); err != nil {
			logger.Warn("watcher: stop channel %s: %v", ch.ID, err)
		}
		w.channels.Delete(key)
	}

	schedErr := w.sched.Stop(timeout)
	queueErr := w.scans.Stop(timeout)
	if schedErr != nil {
		return schedErr
	}
	return queueErr
}
