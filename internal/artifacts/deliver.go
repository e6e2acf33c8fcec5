package artifacts

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/oklog/ulid/v2"

	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/notify"
)

// ErrTooLarge reports that even the compressed archive exceeded the
// platform attachment limit; nothing was delivered.
var ErrTooLarge = errors.New("artifacts exceed attachment size limit")

// Fetcher retrieves one artifact's content from the remote task.
type Fetcher interface {
	FetchFile(ctx context.Context, sessionID, remotePath string) ([]byte, error)
}

// Deliverer downloads a session's tracked artifacts, stages them in
// transient storage and posts them to the thread in the smallest shape that
// fits: single attachment, one message with all files, or a zip archive.
// Transient files are removed on every exit path.
type Deliverer struct {
	Fetcher  Fetcher
	Notifier notify.Notifier

	MaxAttachmentBytes int64
	MaxFilesPerMessage int
	TempDir            string // "" means the OS default
}

type stagedFile struct {
	path string
	name string
	size int64
}

// Finalize runs the full delivery pipeline. A missing or empty artifact
// list is a no-op. Per-artifact download failures are isolated and reported
// together at the end; the returned error is for logging only.
func (d *Deliverer) Finalize(ctx context.Context, sessionID string, thread notify.ThreadRef, c *Collector) error {
	records := c.Records()
	if len(records) == 0 {
		return nil
	}

	maxFiles := d.MaxFilesPerMessage
	if maxFiles <= 0 {
		maxFiles = 10
	}

	d.postManifest(ctx, thread, records)

	var staged []stagedFile
	var failed []string
	var transient []string
	defer func() {
		for _, path := range transient {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				log.Printf("remove transient file %s: %v", path, err)
			}
		}
	}()

	for _, rec := range records {
		content, err := d.Fetcher.FetchFile(ctx, sessionID, rec.RemotePath)
		if err != nil {
			log.Printf("download artifact %s: %v", rec.RemotePath, err)
			failed = append(failed, rec.DisplayName)
			continue
		}
		path, err := d.stage(rec, content)
		if err != nil {
			log.Printf("stage artifact %s: %v", rec.RemotePath, err)
			failed = append(failed, rec.DisplayName)
			continue
		}
		transient = append(transient, path)
		staged = append(staged, stagedFile{path: path, name: rec.DisplayName, size: int64(len(content))})
	}

	if len(staged) == 0 {
		d.post(ctx, thread, notify.Notice{
			Title: "Download Failed",
			Body:  "Failed to download any files from the agent.",
			Color: notify.ColorRed,
		})
		return fmt.Errorf("no artifacts could be downloaded")
	}

	var total int64
	for _, f := range staged {
		total += f.size
	}

	var deliverErr error
	switch {
	case len(staged) == 1 && total < d.MaxAttachmentBytes:
		f := staged[0]
		deliverErr = d.Notifier.Attach(ctx, thread, f.name, []notify.Attachment{{Name: f.name, Path: f.path}})

	case len(staged) <= maxFiles && total < d.MaxAttachmentBytes:
		files := make([]notify.Attachment, 0, len(staged))
		for _, f := range staged {
			files = append(files, notify.Attachment{Name: f.name, Path: f.path})
		}
		deliverErr = d.Notifier.Attach(ctx, thread, "All created files:", files)

	default:
		archivePath, err := d.buildArchive(sessionID, staged)
		if err != nil {
			d.post(ctx, thread, notify.Notice{
				Title: "Archive Failed",
				Body:  "Failed to package the created files.",
				Color: notify.ColorRed,
			})
			deliverErr = err
			break
		}
		transient = append(transient, archivePath)

		info, err := os.Stat(archivePath)
		if err != nil {
			deliverErr = fmt.Errorf("stat archive: %w", err)
			break
		}
		if info.Size() < d.MaxAttachmentBytes {
			name := fmt.Sprintf("agent_files_%s.zip", sessionID)
			text := fmt.Sprintf("All files archived (%d files, %s):", len(staged), humanize.IBytes(uint64(info.Size())))
			deliverErr = d.Notifier.Attach(ctx, thread, text, []notify.Attachment{{Name: name, Path: archivePath}})
		} else {
			d.post(ctx, thread, notify.Notice{
				Title: "Files Too Large",
				Body: fmt.Sprintf("Files are too large to send (archive %s, limit %s).",
					humanize.IBytes(uint64(info.Size())), humanize.IBytes(uint64(d.MaxAttachmentBytes))),
				Color: notify.ColorRed,
			})
			deliverErr = ErrTooLarge
		}
	}

	if len(failed) > 0 {
		var b strings.Builder
		for _, name := range failed {
			fmt.Fprintf(&b, "- %s\n", name)
		}
		d.post(ctx, thread, notify.Notice{
			Title: "Some files could not be downloaded",
			Body:  b.String(),
			Color: notify.ColorOrange,
		})
	}

	return deliverErr
}

func (d *Deliverer) postManifest(ctx context.Context, thread notify.ThreadRef, records []Record) {
	var b strings.Builder
	for i, rec := range records {
		fmt.Fprintf(&b, "%d. %s\n", i+1, rec.DisplayName)
	}
	d.post(ctx, thread, notify.Notice{
		Title:  "Files Created",
		Body:   fmt.Sprintf("The agent created %d file(s). Downloading and sharing them now...", len(records)),
		Color:  notify.ColorGreen,
		Fields: []notify.Field{{Name: "Files", Value: b.String()}},
	})
}

func (d *Deliverer) post(ctx context.Context, thread notify.ThreadRef, n notify.Notice) {
	if _, err := d.Notifier.Post(ctx, thread, n); err != nil {
		log.Printf("post %q notice: %v", n.Title, err)
	}
}

// stage writes content to a uniquely named transient file, preserving the
// artifact's extension so the platform can render a preview.
func (d *Deliverer) stage(rec Record, content []byte) (string, error) {
	ext := filepath.Ext(rec.DisplayName)
	if ext == "" {
		ext = ".txt"
	}
	pattern := ulid.Make().String() + "-*" + ext
	f, err := os.CreateTemp(d.TempDir, pattern)
	if err != nil {
		return "", fmt.Errorf("create transient file: %w", err)
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write transient file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close transient file: %w", err)
	}
	return f.Name(), nil
}

func (d *Deliverer) buildArchive(sessionID string, staged []stagedFile) (string, error) {
	f, err := os.CreateTemp(d.TempDir, "agent_files_"+sessionID+"_*.zip")
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}

	discard := func(err error) (string, error) {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}

	zw := zip.NewWriter(f)
	for _, s := range staged {
		src, err := os.Open(s.path)
		if err != nil {
			_ = zw.Close()
			return discard(fmt.Errorf("open staged file %s: %w", s.name, err))
		}
		entry, err := zw.Create(s.name)
		if err == nil {
			_, err = io.Copy(entry, src)
		}
		_ = src.Close()
		if err != nil {
			_ = zw.Close()
			return discard(fmt.Errorf("archive %s: %w", s.name, err))
		}
	}
	if err := zw.Close(); err != nil {
		return discard(fmt.Errorf("finish archive: %w", err))
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close archive: %w", err)
	}
	return f.Name(), nil
}
