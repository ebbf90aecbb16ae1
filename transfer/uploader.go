package transfer

import (
	"context"
	"os"
	"sync"
	"time"

	"es3/agenda"
	"es3/compressor"
	"es3/internal/es3err"
	"es3/progressbar"
	"es3/remote"
)

// Uploader drives PUT transfers (simple or multipart) through a running
// Agenda.
type Uploader struct {
	Ops            *remote.Ops
	ScratchDir     string
	MaxCompressors int
	// Quiet suppresses the per-transfer byte progress bar on multipart
	// uploads.
	Quiet bool
}

// NewUploader builds an Uploader over ops.
func NewUploader(ops *remote.Ops, scratchDir string, maxCompressors int) *Uploader {
	return &Uploader{Ops: ops, ScratchDir: scratchDir, MaxCompressors: maxCompressors}
}

// Options controls a single Upload call.
type Options struct {
	// Compress gzip-compresses the object before upload.
	Compress bool
	// JustTouch skips reading any file content and PUTs a zero-length
	// marker object carrying only metadata headers, used by the `touch`
	// command.
	JustTouch bool
}

// Upload sends localPath to remotePath. If the remote object already
// carries the same raw size and mtime, Upload returns immediately — the
// mtime/size short-circuit shared with the downloader.
func (u *Uploader) Upload(ag *agenda.Agenda, localPath string, remotePath remote.Path, opts Options) error {
	if opts.JustTouch {
		return u.touch(remotePath)
	}

	localInfo, err := os.Stat(localPath)
	if err != nil {
		return es3err.Wrap(es3err.LevelFatal, err, "stat "+localPath)
	}
	size := localInfo.Size()
	mtime := localInfo.ModTime().Unix()
	mode := uint32(localInfo.Mode().Perm())

	desc, err := u.Ops.Head(remotePath)
	if err != nil {
		return err
	}
	if desc.Found && desc.RawSize == uint64(size) && desc.Mtime == mtime {
		return nil
	}

	uploadPath := localPath
	if opts.Compress {
		flatName := sanitizeScratchName("up-" + remotePath.Bucket + remotePath.Key)
		scratchPath := u.ScratchDir + "/" + flatName
		if err := compressor.CompressFile(ag, localPath, scratchPath, u.MaxCompressors); err != nil {
			return err
		}
		defer os.Remove(scratchPath)
		uploadPath = scratchPath
	}

	uploadInfo, err := os.Stat(uploadPath)
	if err != nil {
		return es3err.Wrap(es3err.LevelFatal, err, "stat "+uploadPath)
	}
	uploadSize := uploadInfo.Size()

	headers := metadataHeaders(mtime, mode, uint64(size), opts.Compress)

	segmentSize := int64(ag.SegmentSize())
	if uploadSize <= segmentSize {
		return u.simplePut(uploadPath, remotePath, headers)
	}
	return u.multipartPut(ag, uploadPath, remotePath, headers, uploadSize, segmentSize)
}

// touch creates remotePath as a zero-byte object only if nothing is
// there yet; an existing object is left untouched, matching
// do_touch's list_files_shallow existence check.
func (u *Uploader) touch(remotePath remote.Path) error {
	desc, err := u.Ops.Head(remotePath)
	if err != nil {
		return err
	}
	if desc.Found {
		return nil
	}
	headers := metadataHeaders(time.Now().Unix(), 0644, 0, false)
	_, err = u.Ops.UploadPart(remotePath, "", 0, nil, headers)
	return err
}

func (u *Uploader) simplePut(path string, remotePath remote.Path, headers map[string]string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return es3err.Wrap(es3err.LevelFatal, err, "read "+path)
	}
	_, err = u.Ops.UploadPart(remotePath, "", 0, data, headers)
	return err
}

func (u *Uploader) multipartPut(ag *agenda.Agenda, path string, remotePath remote.Path, headers map[string]string, size, segmentSize int64) error {
	partCount := int((size + segmentSize - 1) / segmentSize)
	if partCount > MaxSegmentCount {
		return es3err.Fatalf("object too large: %d parts exceeds %d", partCount, MaxSegmentCount)
	}

	uploadID, err := u.Ops.InitiateMultipart(remotePath, headers)
	if err != nil {
		return err
	}

	rec := &uploadRecord{
		path:     path,
		remote:   remotePath,
		uploadID: uploadID,
		etags:    make([]string, partCount),
		done:     make(chan error, 1),
		progress: progressbar.New(size, remotePath.String(), u.Quiet),
	}
	rec.remaining = partCount

	for i := 0; i < partCount; i++ {
		offset := int64(i) * segmentSize
		length := segmentSize
		if remaining := size - offset; length > remaining {
			length = remaining
		}
		ag.Schedule(&partUploadTask{
			ops:     u.Ops,
			rec:     rec,
			partNum: i + 1,
			offset:  offset,
			length:  length,
		})
	}

	if err := <-rec.done; err != nil {
		return err
	}
	rec.progress.Finish()

	_, err = u.Ops.CompleteMultipart(remotePath, uploadID, rec.etags)
	return err
}

func metadataHeaders(mtime int64, mode uint32, rawSize uint64, compressed bool) map[string]string {
	h := map[string]string{
		"x-amz-meta-mtime":    formatInt(mtime),
		"x-amz-meta-mode":     formatOctal(mode),
		"x-amz-meta-raw-size": formatUint(rawSize),
	}
	if compressed {
		h["x-amz-meta-compressed"] = "1"
	}
	return h
}

// uploadRecord is the shared completion state for one multipart upload:
// the last part-upload task to decrement remaining to zero signals
// completion (the content-record pattern).
type uploadRecord struct {
	mu        sync.Mutex
	remaining int
	firstErr  error

	path     string
	remote   remote.Path
	uploadID string
	etags    []string
	done     chan error
	progress *progressbar.Bar
}

func (r *uploadRecord) completePart(partNum int, etag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.etags[partNum-1] = etag
	r.remaining--
	if r.remaining == 0 {
		r.done <- r.firstErr
	}
}

func (r *uploadRecord) fail(err error) {
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

// partUploadTask reads its byte range from the (possibly compressed)
// upload file and PUTs it as one multipart part. SegmentNeed is 1: the read buffer is a pool segment,
// consistent with the downloader's segment accounting.
type partUploadTask struct {
	agenda.Base
	ops            *remote.Ops
	rec            *uploadRecord
	partNum        int
	offset, length int64
}

func (t *partUploadTask) Class() agenda.Class { return agenda.IOBound }
func (t *partUploadTask) SegmentNeed() int    { return 1 }
func (t *partUploadTask) String() string      { return "upload-part " + t.rec.remote.String() }

func (t *partUploadTask) Run(ag *agenda.Agenda, segs []*agenda.Segment) error {
	seg := segs[0]
	seg.Resize(int(t.length))
	defer seg.Release()

	f, err := os.Open(t.rec.path)
	if err != nil {
		wrapped := es3err.Wrap(es3err.LevelFatal, err, "open "+t.rec.path)
		t.rec.fail(wrapped)
		return wrapped
	}
	defer f.Close()

	if _, err := f.ReadAt(seg.Data, t.offset); err != nil {
		wrapped := es3err.Wrap(es3err.LevelFatal, err, "read part")
		t.rec.fail(wrapped)
		return wrapped
	}

	if ag.Limiter != nil {
		ag.Limiter.Wait(context.Background(), len(seg.Data))
	}

	var lastErr error
	var etag string
	for attempt := 0; attempt < 10; attempt++ {
		etag, lastErr = t.ops.UploadPart(t.rec.remote, t.rec.uploadID, t.partNum, seg.Data, nil)
		if lastErr == nil {
			break
		}
		e, ok := lastErr.(*es3err.Error)
		if !ok || !e.Retryable() {
			break
		}
		time.Sleep(5 * time.Second)
	}
	if lastErr != nil {
		wrapped := es3err.Wrap(es3err.LevelFatal, lastErr, "upload part exhausted retries")
		t.rec.fail(wrapped)
		return wrapped
	}

	t.rec.progress.Add(int(t.length))
	t.rec.completePart(t.partNum, etag)
	return nil
}
