package artifacts_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/artifacts"
	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/testutil"
)

type fakeFetcher struct {
	content map[string][]byte
	failing map[string]bool
}

func (f *fakeFetcher) FetchFile(_ context.Context, _, remotePath string) ([]byte, error) {
	if f.failing[remotePath] {
		return nil, errors.New("boom")
	}
	content, ok := f.content[remotePath]
	if !ok {
		return nil, errors.New("not found")
	}
	return content, nil
}

func newDeliverer(t *testing.T, fetcher artifacts.Fetcher, notifier *testutil.FakeNotifier, limit int64) (*artifacts.Deliverer, string) {
	t.Helper()
	dir := t.TempDir()
	return &artifacts.Deliverer{
		Fetcher:            fetcher,
		Notifier:           notifier,
		MaxAttachmentBytes: limit,
		MaxFilesPerMessage: 10,
		TempDir:            dir,
	}, dir
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("transient files left behind: %d", len(entries))
	}
}

func TestAddIsIdempotent(t *testing.T) {
	c := artifacts.NewCollector()
	if !c.Add("output/a.txt", "a.txt") {
		t.Fatalf("first add should be new")
	}
	if c.Add("output/a.txt", "a.txt") {
		t.Fatalf("duplicate add should be ignored")
	}
	if c.Add("output/b.txt", "b.txt") != true || c.Count() != 2 {
		t.Fatalf("expected 2 tracked artifacts, got %d", c.Count())
	}
}

func TestFinalizeEmptyListIsNoop(t *testing.T) {
	notifier := testutil.NewFakeNotifier()
	d, dir := newDeliverer(t, &fakeFetcher{}, notifier, 1<<20)
	if err := d.Finalize(context.Background(), "s", "thread", artifacts.NewCollector()); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if notifier.NoticeCount() != 0 || notifier.AttachCount() != 0 {
		t.Fatalf("expected no activity for empty list")
	}
	requireEmptyDir(t, dir)
}

func TestSingleSmallFileDeliveredIndividually(t *testing.T) {
	fetcher := &fakeFetcher{content: map[string][]byte{
		"output/a.txt": bytes.Repeat([]byte("x"), 1024),
	}}
	notifier := testutil.NewFakeNotifier()
	d, dir := newDeliverer(t, fetcher, notifier, 25*1024*1024)

	c := artifacts.NewCollector()
	c.Add("output/a.txt", "a.txt")

	if err := d.Finalize(context.Background(), "s", "thread", c); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if notifier.AttachCount() != 1 {
		t.Fatalf("expected one attach, got %d", notifier.AttachCount())
	}
	if len(notifier.Attached[0]) != 1 || notifier.Attached[0][0].Name != "a.txt" {
		t.Fatalf("unexpected attachments %+v", notifier.Attached[0])
	}
	requireEmptyDir(t, dir)
}

func TestFewFilesDeliveredTogether(t *testing.T) {
	fetcher := &fakeFetcher{content: map[string][]byte{}}
	c := artifacts.NewCollector()
	for i := 0; i < 5; i++ {
		path := fmt.Sprintf("output/f%d.txt", i)
		fetcher.content[path] = bytes.Repeat([]byte("y"), 400*1024)
		c.Add(path, fmt.Sprintf("f%d.txt", i))
	}
	notifier := testutil.NewFakeNotifier()
	d, dir := newDeliverer(t, fetcher, notifier, 25*1024*1024)

	if err := d.Finalize(context.Background(), "s", "thread", c); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if notifier.AttachCount() != 1 {
		t.Fatalf("expected one attach message, got %d", notifier.AttachCount())
	}
	if len(notifier.Attached[0]) != 5 {
		t.Fatalf("expected 5 attachments, got %d", len(notifier.Attached[0]))
	}
	// Insertion order preserved.
	for i, att := range notifier.Attached[0] {
		if att.Name != fmt.Sprintf("f%d.txt", i) {
			t.Fatalf("order broken at %d: %q", i, att.Name)
		}
	}
	requireEmptyDir(t, dir)
}

func TestManyFilesArchived(t *testing.T) {
	fetcher := &fakeFetcher{content: map[string][]byte{}}
	c := artifacts.NewCollector()
	for i := 0; i < 15; i++ {
		path := fmt.Sprintf("output/f%d.txt", i)
		fetcher.content[path] = []byte("small")
		c.Add(path, fmt.Sprintf("f%d.txt", i))
	}
	notifier := testutil.NewFakeNotifier()
	d, dir := newDeliverer(t, fetcher, notifier, 25*1024*1024)

	if err := d.Finalize(context.Background(), "sess", "thread", c); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if notifier.AttachCount() != 1 {
		t.Fatalf("expected one attach, got %d", notifier.AttachCount())
	}
	files := notifier.Attached[0]
	if len(files) != 1 || !strings.HasSuffix(files[0].Name, ".zip") {
		t.Fatalf("expected a single zip attachment, got %+v", files)
	}
	requireEmptyDir(t, dir)
}

func TestOversizeTotalArchived(t *testing.T) {
	// Two files whose combined size exceeds the limit but compress well.
	fetcher := &fakeFetcher{content: map[string][]byte{
		"a.bin": bytes.Repeat([]byte("a"), 64*1024),
		"b.bin": bytes.Repeat([]byte("b"), 64*1024),
	}}
	c := artifacts.NewCollector()
	c.Add("a.bin", "a.bin")
	c.Add("b.bin", "b.bin")
	notifier := testutil.NewFakeNotifier()
	d, dir := newDeliverer(t, fetcher, notifier, 100*1024)

	if err := d.Finalize(context.Background(), "sess", "thread", c); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	files := notifier.Attached[0]
	if len(files) != 1 || !strings.HasSuffix(files[0].Name, ".zip") {
		t.Fatalf("expected zip fallback, got %+v", files)
	}
	requireEmptyDir(t, dir)
}

func TestOversizeArchiveReportsCapacityExceeded(t *testing.T) {
	// A tiny limit no zip can fit under.
	fetcher := &fakeFetcher{content: map[string][]byte{
		"a.bin": bytes.Repeat([]byte("a"), 4096),
		"b.bin": bytes.Repeat([]byte("b"), 4096),
	}}
	c := artifacts.NewCollector()
	c.Add("a.bin", "a.bin")
	c.Add("b.bin", "b.bin")
	notifier := testutil.NewFakeNotifier()
	d, dir := newDeliverer(t, fetcher, notifier, 64)

	err := d.Finalize(context.Background(), "sess", "thread", c)
	if !errors.Is(err, artifacts.ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if notifier.AttachCount() != 0 {
		t.Fatalf("nothing should be delivered when over capacity")
	}
	found := false
	for _, title := range notifier.NoticeTitles() {
		if title == "Files Too Large" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected capacity notice, got %v", notifier.NoticeTitles())
	}
	requireEmptyDir(t, dir)
}

func TestFailedDownloadsIsolatedAndReported(t *testing.T) {
	fetcher := &fakeFetcher{
		content: map[string][]byte{"good.txt": []byte("ok")},
		failing: map[string]bool{"bad.txt": true},
	}
	c := artifacts.NewCollector()
	c.Add("good.txt", "good.txt")
	c.Add("bad.txt", "bad.txt")
	notifier := testutil.NewFakeNotifier()
	d, dir := newDeliverer(t, fetcher, notifier, 25*1024*1024)

	if err := d.Finalize(context.Background(), "sess", "thread", c); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if notifier.AttachCount() != 1 || notifier.Attached[0][0].Name != "good.txt" {
		t.Fatalf("good file not delivered: %+v", notifier.Attached)
	}
	failedReported := false
	for _, n := range notifier.Notices {
		if n.Title == "Some files could not be downloaded" && strings.Contains(n.Body, "bad.txt") {
			failedReported = true
		}
	}
	if !failedReported {
		t.Fatalf("expected failed-files notice")
	}
	requireEmptyDir(t, dir)
}

func TestAllDownloadsFailed(t *testing.T) {
	fetcher := &fakeFetcher{failing: map[string]bool{"x": true}}
	c := artifacts.NewCollector()
	c.Add("x", "x")
	notifier := testutil.NewFakeNotifier()
	d, dir := newDeliverer(t, fetcher, notifier, 25*1024*1024)

	if err := d.Finalize(context.Background(), "sess", "thread", c); err == nil {
		t.Fatalf("expected error when nothing downloads")
	}
	if notifier.AttachCount() != 0 {
		t.Fatalf("unexpected delivery")
	}
	requireEmptyDir(t, dir)
}
