package cmd

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"es3/agenda"
	"es3/internal/es3err"
	"es3/ratelimit"
	"es3/remote"
	"es3/transfer"
)

// walkConcurrency caps how many subdirectories a recursive remote walk
// fans out into at once; fn itself (Delete, SetACL, ...) is the actual
// I/O so this bounds outstanding ListShallow calls, not bytes moved.
const walkConcurrency = 8

// Exit codes: 0 ok, 2 any other Fatal-level error (auth and other 4xx
// responses, local I/O failures), 3 missing local path, 4 incomplete after
// retries, 5 object not found, 6 remote conflict, 8 anything else
// unclassified, including argument errors. exitUsage (1) is declared but
// exitCodeFor never returns it.
const (
	exitOK               = 0
	exitUsage            = 1
	exitConnection       = 2
	exitMissingLocalPath = 3
	exitIncomplete       = 4
	exitNotFound         = 5
	exitConflict         = 6
	exitOther            = 8
)

// incompleteError marks a sync run that still had failing tasks after
// its retry envelope.
type incompleteError struct{ msg string }

func (e *incompleteError) Error() string { return e.msg }

// missingLocalPathError marks a local directory argument that doesn't
// exist, checked up front so a typo doesn't fall through to the
// synchronizer's "local side is empty" branches and, combined with
// --delete, schedule deletion of an entire remote prefix.
type missingLocalPathError struct{ msg string }

func (e *missingLocalPathError) Error() string { return e.msg }

func exitCodeFor(err error) int {
	if _, ok := err.(*missingLocalPathError); ok {
		return exitMissingLocalPath
	}
	if _, ok := err.(*incompleteError); ok {
		return exitIncomplete
	}
	e, ok := err.(*es3err.Error)
	if !ok {
		return exitOther
	}
	switch e.Context["status"] {
	case "404":
		return exitNotFound
	case "409":
		return exitConflict
	}
	if e.Level == es3err.LevelFatal {
		return exitConnection
	}
	return exitOther
}

// newOps builds a remote.Ops bound to the bucket's resolved region, the
// region-lookup-immediately-after-parse step every CLI command performs
// (grounded on commands.cpp).
func newOps(path remote.Path) (*remote.Ops, remote.Path, error) {
	pool := remote.NewPool("", 30*time.Second)
	ops := remote.NewOps(pool, cfg.AccessKey, cfg.SecretKey, cfg.UseSSL)

	region, err := ops.FindRegion(path.Bucket)
	if err != nil {
		return nil, path, err
	}
	path.Zone = region
	return ops, path, nil
}

// agendaLimits splits the configured thread counts across the three
// task classes.
func agendaLimits() agenda.Limits {
	return agenda.Limits{
		Unbound:  cfg.ThreadNum,
		CPUBound: cfg.CompressorThreads,
		IOBound:  cfg.ReaderThreads,
	}
}

// newAgenda builds an Agenda sized from the resolved configuration.
func newAgenda() *agenda.Agenda {
	ag := agenda.New(agendaLimits(), int(cfg.SegmentSize), cfg.SegmentsInFlight, cfg.NoProgress, cfg.NoStats)
	ag.Limiter = ratelimit.New(cfg.BandwidthLimit)
	return ag
}

func newUploader(ops *remote.Ops) *transfer.Uploader {
	u := transfer.NewUploader(ops, cfg.ScratchDir, cfg.CompressorThreads)
	u.Quiet = cfg.NoProgress
	return u
}

func newDownloader(ops *remote.Ops) *transfer.Downloader {
	d := transfer.NewDownloader(ops, cfg.ScratchDir)
	d.Quiet = cfg.NoProgress
	return d
}

// isPrefix reports whether path names a directory prefix (rm, du, ls -r,
// and publish all recurse on a trailing slash rather than requiring a
// separate --recursive flag).
func isPrefix(path remote.Path) bool {
	return path.Key == "" || strings.HasSuffix(path.Key, "/")
}

// walkRemote visits every file under root. Files in one directory are
// visited in lexicographic order; subdirectories recurse concurrently,
// bounded by walkConcurrency, via an errgroup so a deep or wide tree
// doesn't serialize on ListShallow's round-trip latency. fn must be
// safe for concurrent use — rm, du, and publish all satisfy this.
func walkRemote(ops *remote.Ops, root remote.Path, fn func(*remote.File) error) error {
	dir, err := ops.ListShallow(root)
	if err != nil {
		return err
	}

	fileNames := make([]string, 0, len(dir.Files))
	for name := range dir.Files {
		fileNames = append(fileNames, name)
	}
	sort.Strings(fileNames)
	for _, name := range fileNames {
		if err := fn(dir.Files[name]); err != nil {
			return err
		}
	}

	subNames := make([]string, 0, len(dir.Subdirs))
	for name := range dir.Subdirs {
		subNames = append(subNames, name)
	}
	sort.Strings(subNames)

	g := new(errgroup.Group)
	g.SetLimit(walkConcurrency)
	for _, name := range subNames {
		sub := dir.Subdirs[name]
		g.Go(func() error {
			return walkRemote(ops, sub.Absolute, fn)
		})
	}
	return g.Wait()
}
