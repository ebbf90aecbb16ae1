// Package compressor implements a block-parallel gzip codec: files
// larger than the block threshold are split into independently
// compressed blocks whose concatenated gzip streams
// decompress back to the original bytes. Grounded on the original
// implementation's compressor.cpp block-splitting scheme and adapted to
// the agenda's CPUBound task class.
package compressor

import (
	"compress/gzip"
	"io"
	"os"
	"strconv"
	"sync"

	"es3/agenda"
	"es3/internal/es3err"
)

// BlockThreshold is the minimum file size before block-parallel
// compression kicks in; smaller files compress in a single pass.
const BlockThreshold = 1 << 20 // 1 MiB

// MaxBlockSize is the per-block uncompressed size used to derive the
// block count: N = min(file_size/MaxBlockSize, maxCompressors).
const MaxBlockSize = 1 << 20

// CompressFile compresses path into a new scratch file using up to
// maxCompressors CPUBound tasks dispatched through ag, returning the
// scratch file's path. Files at or under BlockThreshold are compressed
// inline on the calling goroutine. ag must already be running (its Run loop
// active on another goroutine) — CompressFile only schedules work and
// blocks until its own blocks finish, it never starts or stops workers.
func CompressFile(ag *agenda.Agenda, path, scratchPath string, maxCompressors int) error {
	info, err := os.Stat(path)
	if err != nil {
		return es3err.Wrap(es3err.LevelFatal, err, "stat "+path)
	}

	size := info.Size()
	if size <= BlockThreshold {
		return compressWhole(path, scratchPath)
	}

	n := int(size / MaxBlockSize)
	if n > maxCompressors {
		n = maxCompressors
	}
	if n < 1 {
		n = 1
	}

	blockSize := size / int64(n)
	blockPaths := make([]string, n)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	wg.Add(n)

	for i := 0; i < n; i++ {
		offset := int64(i) * blockSize
		length := blockSize
		if i == n-1 {
			length = size - offset
		}
		blockPath := scratchPath + ".blk" + strconv.Itoa(i)
		blockPaths[i] = blockPath

		ag.Schedule(&compressBlockTask{
			src:    path,
			dst:    blockPath,
			offset: offset,
			length: length,
			done: func(err error) {
				defer wg.Done()
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
				}
			},
		})
	}

	wg.Wait()
	if firstErr != nil {
		for _, p := range blockPaths {
			os.Remove(p)
		}
		return firstErr
	}

	return concatenateBlocks(blockPaths, scratchPath)
}

// compressWhole gzips a small file in a single pass on the calling
// goroutine, without involving the agenda.
func compressWhole(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return es3err.Wrap(es3err.LevelFatal, err, "open "+src)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return es3err.Wrap(es3err.LevelFatal, err, "create "+dst)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		return es3err.Wrap(es3err.LevelWarn, err, "compress "+src)
	}
	return gz.Close()
}

// compressBlockTask compresses one file block into its own self-contained
// gzip stream, scheduled as a CPUBound task.
type compressBlockTask struct {
	agenda.Base
	src, dst      string
	offset, length int64
	done          func(error)
}

func (t *compressBlockTask) Class() agenda.Class { return agenda.CPUBound }
func (t *compressBlockTask) String() string       { return "compress-block " + t.dst }

func (t *compressBlockTask) Run(ag *agenda.Agenda, segs []*agenda.Segment) error {
	err := t.compress()
	t.done(err)
	return err
}

func (t *compressBlockTask) compress() error {
	in, err := os.Open(t.src)
	if err != nil {
		return es3err.Wrap(es3err.LevelFatal, err, "open "+t.src)
	}
	defer in.Close()

	if _, err := in.Seek(t.offset, io.SeekStart); err != nil {
		return es3err.Wrap(es3err.LevelFatal, err, "seek "+t.src)
	}

	out, err := os.Create(t.dst)
	if err != nil {
		return es3err.Wrap(es3err.LevelFatal, err, "create "+t.dst)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	if _, err := io.CopyN(gz, in, t.length); err != nil {
		return es3err.Wrap(es3err.LevelWarn, err, "compress block "+t.dst)
	}
	return gz.Close()
}

// concatenateBlocks appends each block's independent gzip stream into
// dst in order; concatenated gzip streams decompress as if they were one
// stream when read with Multistream(true).
func concatenateBlocks(blockPaths []string, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return es3err.Wrap(es3err.LevelFatal, err, "create "+dst)
	}
	defer out.Close()

	for _, p := range blockPaths {
		if err := func() error {
			in, err := os.Open(p)
			if err != nil {
				return es3err.Wrap(es3err.LevelFatal, err, "open "+p)
			}
			defer in.Close()
			defer os.Remove(p)
			_, err = io.Copy(out, in)
			return err
		}(); err != nil {
			return es3err.Wrap(es3err.LevelWarn, err, "concatenate "+p)
		}
	}
	return nil
}

// DecompressFile reverses CompressFile: gzip.Reader transparently walks
// concatenated members, so no block bookkeeping is needed on read.
func DecompressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return es3err.Wrap(es3err.LevelFatal, err, "open "+src)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return es3err.Wrap(es3err.LevelFatal, err, "create "+dst)
	}
	defer out.Close()

	gz, err := gzip.NewReader(in)
	if err != nil {
		return es3err.Wrap(es3err.LevelFatal, err, "gzip header "+src)
	}
	gz.Multistream(true)
	defer gz.Close()

	if _, err := io.Copy(out, gz); err != nil {
		return es3err.Wrap(es3err.LevelWarn, err, "decompress "+src)
	}
	return nil
}

