// Package transfer implements the upload and download state machines:
// HEAD-then-short-circuit, segment-parallel transfer through the
// agenda, and the content-record pattern that lets the last of several
// concurrent tasks finalize a file exactly once. Grounded on
// downloader.cpp and uploader.h.
package transfer

import (
	"context"
	"os"
	"sync"
	"time"

	"es3/agenda"
	"es3/compressor"
	"es3/fsutil"
	"es3/internal/config"
	"es3/internal/es3err"
	"es3/progressbar"
	"es3/remote"
)

// MaxSegmentCount is the ceiling on the number of segments a single
// object may be split into.
const MaxSegmentCount = config.MaxPartNumber

// Downloader drives GET transfers through a running Agenda.
type Downloader struct {
	Ops        *remote.Ops
	ScratchDir string
	// Quiet suppresses the per-transfer byte progress bar.
	Quiet bool
}

// NewDownloader builds a Downloader over ops, using scratchDir for
// compressed objects' temp files.
func NewDownloader(ops *remote.Ops, scratchDir string) *Downloader {
	return &Downloader{Ops: ops, ScratchDir: scratchDir}
}

// downloadRecord is the shared completion state for one object's
// segments: the last segment write to decrement remaining to zero
// finalizes the file.
type downloadRecord struct {
	mu        sync.Mutex
	remaining int
	firstErr  error

	tempFile *os.File
	tempPath string
	destPath string
	desc     remote.FileDescriptor
	done     chan error
	progress *progressbar.Bar
}

// Download fetches remotePath into localPath. If localPath already
// matches the remote object's recorded mtime and raw size, Download
// returns immediately without scheduling any work.
func (d *Downloader) Download(ag *agenda.Agenda, remotePath remote.Path, localPath string) error {
	desc, err := d.Ops.Head(remotePath)
	if err != nil {
		return err
	}
	if !desc.Found {
		return es3err.Fatalf("remote object not found: %s", remotePath)
	}

	if info, statErr := os.Stat(localPath); statErr == nil {
		if uint64(info.Size()) == desc.RawSize && info.ModTime().Unix() == desc.Mtime {
			return nil
		}
	}

	segmentSize := ag.SegmentSize()
	segNum := segmentCount(desc.RemoteSize, int64(segmentSize))
	if segNum > MaxSegmentCount {
		return es3err.Fatalf("object too large: %d segments exceeds %d", segNum, MaxSegmentCount)
	}

	tempPath := d.tempPathFor(localPath, desc.Compressed)
	if err := fsutil.EnsureDir(tempPath); err != nil {
		return es3err.Wrap(es3err.LevelFatal, err, "create scratch dir")
	}
	if err := fsutil.CreatePreallocated(tempPath, int64(desc.RemoteSize)); err != nil {
		return err
	}
	tempFile, err := os.OpenFile(tempPath, os.O_RDWR, 0600)
	if err != nil {
		return es3err.Wrap(es3err.LevelFatal, err, "reopen "+tempPath)
	}

	rec := &downloadRecord{
		tempFile: tempFile,
		tempPath: tempPath,
		destPath: localPath,
		desc:     desc,
		done:     make(chan error, 1),
		progress: progressbar.New(int64(desc.RemoteSize), remotePath.String(), d.Quiet),
	}
	rec.remaining = segNum

	for i := 0; i < segNum; i++ {
		offset := int64(i) * int64(segmentSize)
		length := int64(segmentSize)
		if remaining := int64(desc.RemoteSize) - offset; length > remaining {
			length = remaining
		}
		ag.Schedule(&downloadSegmentTask{
			ops:    d.Ops,
			path:   remotePath,
			offset: offset,
			length: length,
			rec:    rec,
		})
	}

	return <-rec.done
}

// tempPathFor places compressed objects in the scratch directory
// (their bytes are never the final ones written to disk); uncompressed
// objects are staged alongside the destination so the final rename is
// same-filesystem.
func (d *Downloader) tempPathFor(destPath string, compressed bool) string {
	if compressed {
		return fsutil.ScratchName(d.ScratchDir + "/dl")
	}
	return fsutil.ScratchName(destPath)
}

func segmentCount(remoteSize uint64, segmentSize int64) int {
	if remoteSize == 0 {
		return 1
	}
	n := (int64(remoteSize) + segmentSize - 1) / segmentSize
	return int(n)
}

// downloadSegmentTask fetches one byte range into an acquired segment,
// then hands the segment *by value* to a write task rather than
// releasing and re-acquiring.
type downloadSegmentTask struct {
	agenda.Base
	ops          *remote.Ops
	path         remote.Path
	offset, length int64
	rec          *downloadRecord
}

func (t *downloadSegmentTask) Class() agenda.Class { return agenda.Unbound }
func (t *downloadSegmentTask) SegmentNeed() int    { return 1 }
func (t *downloadSegmentTask) String() string {
	return "download-segment " + t.path.String()
}

// Run fetches the range into seg. Transient failures are retried here
// rather than left to the agenda's own per-task retry loop: a download
// segment has a follow-on write task and a shared completion record, so
// only this task (not the generic worker loop) knows when to give up on
// the record as a whole and decrement it exactly once.
func (t *downloadSegmentTask) Run(ag *agenda.Agenda, segs []*agenda.Segment) error {
	seg := segs[0]
	seg.Resize(int(t.length))

	if ag.Limiter != nil {
		ag.Limiter.Wait(context.Background(), len(seg.Data))
	}

	var lastErr error
	for attempt := 0; t.length > 0 && attempt < 10; attempt++ {
		err := t.ops.DownloadRange(t.path, uint64(t.offset), seg.Data, nil)
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		e, ok := err.(*es3err.Error)
		if !ok || !e.Retryable() {
			break
		}
		time.Sleep(5 * time.Second)
	}
	if lastErr != nil {
		seg.Release()
		wrapped := es3err.Wrap(es3err.LevelFatal, lastErr, "download segment exhausted retries")
		t.rec.fail(wrapped)
		return wrapped
	}

	ag.Schedule(&writeSegmentTask{offset: t.offset, seg: seg, rec: t.rec})
	return nil
}

// writeSegmentTask writes one downloaded segment to the temp file at its
// offset and, if it is the last outstanding segment, finalizes the
// object.
type writeSegmentTask struct {
	agenda.Base
	offset int64
	seg    *agenda.Segment
	rec    *downloadRecord
}

func (t *writeSegmentTask) Class() agenda.Class { return agenda.IOBound }
func (t *writeSegmentTask) String() string      { return "write-segment " + t.rec.destPath }

// Run writes the segment and releases it exactly once. Like
// downloadSegmentTask, failures are resolved here (not left to the
// agenda's outer retry loop) so the record is decremented exactly once
// regardless of how many times the write itself is attempted.
func (t *writeSegmentTask) Run(ag *agenda.Agenda, _ []*agenda.Segment) error {
	written := len(t.seg.Data)
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		_, err := t.rec.tempFile.WriteAt(t.seg.Data, t.offset)
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		time.Sleep(time.Second)
	}
	t.seg.Release()

	if lastErr != nil {
		wrapped := es3err.Wrap(es3err.LevelFatal, lastErr, "write segment")
		t.rec.fail(wrapped)
		return wrapped
	}
	t.rec.progress.Add(written)

	if t.rec.decrementAndCheckLast() {
		t.rec.finalize()
	}
	return nil
}

func (r *downloadRecord) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.firstErr == nil {
		r.firstErr = err
	}
	r.remaining--
	if r.remaining == 0 {
		r.done <- r.firstErr
	}
}

func (r *downloadRecord) decrementAndCheckLast() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remaining--
	return r.remaining == 0 && r.firstErr == nil
}

func (r *downloadRecord) finalize() {
	r.progress.Finish()
	err := r.tempFile.Close()
	if err != nil {
		r.done <- es3err.Wrap(es3err.LevelFatal, err, "close "+r.tempPath)
		return
	}

	if r.desc.Compressed {
		if err := compressor.DecompressFile(r.tempPath, r.destPath); err != nil {
			os.Remove(r.tempPath)
			r.done <- err
			return
		}
		os.Remove(r.tempPath)
	} else {
		if err := fsutil.AtomicRename(r.tempPath, r.destPath); err != nil {
			r.done <- err
			return
		}
	}

	mtime := time.Unix(r.desc.Mtime, 0)
	os.Chtimes(r.destPath, mtime, mtime)
	if r.desc.Mode != 0 {
		os.Chmod(r.destPath, os.FileMode(r.desc.Mode))
	}
	r.done <- nil
}
