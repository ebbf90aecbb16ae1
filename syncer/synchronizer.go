package syncer

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"es3/agenda"
	"es3/internal/es3err"
	"es3/internal/logging"
	"es3/remote"
	"es3/transfer"
)

// Direction is which side of a sync is authoritative.
type Direction int

const (
	// Push copies local files up to the remote prefix.
	Push Direction = iota
	// Pull copies remote objects down to the local directory.
	Pull
)

// Synchronizer walks a local directory and a remote prefix in lockstep
// by filename, scheduling the agenda tasks needed to reconcile them.
// Grounded on sync.cpp/sync.h's synchronizer class.
type Synchronizer struct {
	Ops        *remote.Ops
	Uploader   *transfer.Uploader
	Downloader *transfer.Downloader
	Filter     *Filter

	Direction     Direction
	DeleteMissing bool
	Compress      bool
	NonRecursive  bool
}

// New builds a Synchronizer.
func New(ops *remote.Ops, uploader *transfer.Uploader, downloader *transfer.Downloader, filter *Filter, dir Direction, deleteMissing, compress bool) *Synchronizer {
	if filter == nil {
		filter = NewFilter(nil, nil)
	}
	return &Synchronizer{
		Ops: ops, Uploader: uploader, Downloader: downloader, Filter: filter,
		Direction: dir, DeleteMissing: deleteMissing, Compress: compress,
	}
}

// CreateSchedule walks localRoot and remoteRoot and schedules every sync
// task the comparison implies. It does not run the agenda; callers
// drive Run() themselves (the CLI's retry envelope inspects the failed
// task count Run() returns between attempts).
func (s *Synchronizer) CreateSchedule(ag *agenda.Agenda, localRoot string, remoteRoot remote.Path) error {
	remoteDir, err := s.Ops.ListShallow(remoteRoot)
	if err != nil {
		return err
	}
	return s.processDir(ag, localRoot, "", remoteDir, remoteRoot)
}

// processDir reconciles one directory level: every local entry and
// every remote entry is visited exactly once, lockstep by name,
// grounded on sync.cpp's process_dir.
func (s *Synchronizer) processDir(ag *agenda.Agenda, localDir, relPath string, remoteDir *remote.Directory, remotePath remote.Path) error {
	localEntries, err := os.ReadDir(localDir)
	if err != nil && !os.IsNotExist(err) {
		return es3err.Wrap(es3err.LevelFatal, err, "read dir "+localDir)
	}

	localNames := make(map[string]os.DirEntry, len(localEntries))
	for _, e := range localEntries {
		localNames[e.Name()] = e
	}

	names := make(map[string]bool)
	for name := range localNames {
		names[name] = true
	}
	if remoteDir != nil {
		for name := range remoteDir.Subdirs {
			names[name] = true
		}
		for name := range remoteDir.Files {
			names[name] = true
		}
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	for _, name := range sorted {
		childRel := filepath.Join(relPath, name)
		if !s.Filter.Allow(childRel) {
			continue
		}

		localEntry, localOK := localNames[name]
		_, remoteDirOK := subdir(remoteDir, name)
		remoteFile, remoteFileOK := remoteFileOf(remoteDir, name)

		localPath := filepath.Join(localDir, name)
		childRemotePath := remotePath.Join(name + "/")

		switch {
		case localOK && localEntry.IsDir() && remoteFileOK:
			// conflict: local directory, remote file (spec.md:144).
			if !s.DeleteMissing {
				logging.Warn("type conflict at %s: local directory, remote file; skipping", childRel)
				continue
			}
			switch s.Direction {
			case Push:
				if err := s.Ops.Delete(remoteFile.Absolute); err != nil {
					return err
				}
				if s.NonRecursive {
					continue
				}
				if err := s.processDir(ag, localPath, childRel, nil, childRemotePath); err != nil {
					return err
				}
			case Pull:
				ag.Schedule(&deleteLocalTask{path: localPath, isDir: true})
				s.scheduleFile(ag, localPath, remoteFile.Absolute)
			}

		case localOK && localEntry.IsDir():
			if s.NonRecursive {
				continue
			}
			switch s.Direction {
			case Push:
				var childRemoteDir *remote.Directory
				if remoteDirOK {
					childRemoteDir, err = s.Ops.ListShallow(childRemotePath)
					if err != nil {
						return err
					}
				}
				if err := s.processDir(ag, localPath, childRel, childRemoteDir, childRemotePath); err != nil {
					return err
				}
			case Pull:
				if remoteDirOK {
					if err := s.pullDirectory(ag, localPath, childRel, childRemotePath); err != nil {
						return err
					}
				} else if s.DeleteMissing {
					ag.Schedule(&deleteLocalTask{path: localPath, isDir: true})
				}
			}

		case localOK && !localEntry.IsDir() && remoteDirOK:
			// conflict: local file, remote directory.
			if !s.DeleteMissing {
				logging.Warn("type conflict at %s: local file, remote directory; skipping", childRel)
				continue
			}
			switch s.Direction {
			case Push:
				s.scheduleDeleteTree(ag, remoteDir.Subdirs[name])
				s.scheduleFile(ag, localPath, remotePath.Join(name))
			case Pull:
				ag.Schedule(&deleteLocalTask{path: localPath, isDir: false})
				if err := s.pullDirectory(ag, localPath, childRel, childRemotePath); err != nil {
					return err
				}
			}

		case localOK && !localEntry.IsDir():
			switch s.Direction {
			case Push:
				s.scheduleFile(ag, localPath, remotePath.Join(name))
			case Pull:
				if remoteFileOK {
					s.scheduleFile(ag, localPath, remoteFile.Absolute)
				} else if s.DeleteMissing {
					ag.Schedule(&deleteLocalTask{path: localPath, isDir: false})
				}
			}

		case !localOK && remoteDirOK:
			if s.DeleteMissing && s.Direction == Push {
				s.scheduleDeleteTree(ag, remoteDir.Subdirs[name])
			} else if s.Direction == Pull {
				if err := s.pullDirectory(ag, localPath, childRel, childRemotePath); err != nil {
					return err
				}
			}

		case !localOK && remoteFileOK:
			if s.DeleteMissing && s.Direction == Push {
				ag.Schedule(&deleteObjectTask{ops: s.Ops, path: remoteFile.Absolute})
			} else if s.Direction == Pull {
				s.scheduleFile(ag, localPath, remoteFile.Absolute)
			}
		}
	}
	return nil
}

func subdir(dir *remote.Directory, name string) (*remote.Directory, bool) {
	if dir == nil {
		return nil, false
	}
	d, ok := dir.Subdirs[name]
	return d, ok
}

func remoteFileOf(dir *remote.Directory, name string) (*remote.File, bool) {
	if dir == nil {
		return nil, false
	}
	f, ok := dir.Files[name]
	return f, ok
}

// scheduleFile schedules either an upload or a download for one leaf
// file, depending on Direction.
func (s *Synchronizer) scheduleFile(ag *agenda.Agenda, localPath string, remotePath remote.Path) {
	switch s.Direction {
	case Push:
		ag.Schedule(&syncTask{fn: func(ag *agenda.Agenda) error {
			return s.Uploader.Upload(ag, localPath, remotePath, transfer.Options{Compress: s.Compress})
		}, desc: "sync-upload " + remotePath.String()})
	case Pull:
		ag.Schedule(&syncTask{fn: func(ag *agenda.Agenda) error {
			return s.Downloader.Download(ag, remotePath, localPath)
		}, desc: "sync-download " + remotePath.String()})
	}
}

// pullDirectory recurses into a remote subdirectory during a Pull,
// creating the local directory as needed. remotePath is re-listed here
// because the Subdirs entries produced by ListShallow are unpopulated
// placeholders (name and path only).
func (s *Synchronizer) pullDirectory(ag *agenda.Agenda, localPath, relPath string, remotePath remote.Path) error {
	if err := os.MkdirAll(localPath, 0755); err != nil {
		return es3err.Wrap(es3err.LevelFatal, err, "mkdir "+localPath)
	}
	childRemoteDir, err := s.Ops.ListShallow(remotePath)
	if err != nil {
		return err
	}
	return s.processDir(ag, localPath, relPath, childRemoteDir, remotePath)
}

// scheduleDeleteTree recursively schedules delete tasks for every object
// under a remote-only subdirectory.
func (s *Synchronizer) scheduleDeleteTree(ag *agenda.Agenda, dir *remote.Directory) {
	if dir == nil {
		return
	}
	for _, f := range dir.Files {
		ag.Schedule(&deleteObjectTask{ops: s.Ops, path: f.Absolute})
	}
	for _, sub := range dir.Subdirs {
		s.scheduleDeleteTree(ag, sub)
	}
}

// syncTask wraps a closure-based upload/download as an Unbound agenda
// task, keeping this package's scheduling decisions (which file goes
// which direction) separate from the agenda's generic retry machinery;
// transfer.Uploader/Downloader already manage their own segment-level
// retries internally.
type syncTask struct {
	agenda.Base
	fn   func(ag *agenda.Agenda) error
	desc string
}

func (t *syncTask) Class() agenda.Class { return agenda.Unbound }
func (t *syncTask) String() string      { return t.desc }
func (t *syncTask) Run(ag *agenda.Agenda, _ []*agenda.Segment) error {
	return t.fn(ag)
}

// deleteObjectTask removes one remote object, retrying transient
// failures internally.
type deleteObjectTask struct {
	agenda.Base
	ops  *remote.Ops
	path remote.Path
}

func (t *deleteObjectTask) Class() agenda.Class { return agenda.IOBound }
func (t *deleteObjectTask) String() string      { return "delete " + t.path.String() }

func (t *deleteObjectTask) Run(ag *agenda.Agenda, _ []*agenda.Segment) error {
	var lastErr error
	for attempt := 0; attempt < 10; attempt++ {
		lastErr = t.ops.Delete(t.path)
		if lastErr == nil {
			return nil
		}
		e, ok := lastErr.(*es3err.Error)
		if !ok || !e.Retryable() {
			break
		}
		time.Sleep(5 * time.Second)
	}
	return es3err.Wrap(es3err.LevelFatal, lastErr, "delete exhausted retries")
}

// deleteLocalTask removes one local file or directory tree, scheduled
// for a Pull with DeleteMissing against a remote-only-absent entry.
type deleteLocalTask struct {
	agenda.Base
	path  string
	isDir bool
}

func (t *deleteLocalTask) Class() agenda.Class { return agenda.IOBound }
func (t *deleteLocalTask) String() string      { return "delete local " + t.path }

func (t *deleteLocalTask) Run(ag *agenda.Agenda, _ []*agenda.Segment) error {
	var err error
	if t.isDir {
		err = os.RemoveAll(t.path)
	} else {
		err = os.Remove(t.path)
	}
	if err != nil && !os.IsNotExist(err) {
		return es3err.Wrap(es3err.LevelFatal, err, "delete local "+t.path)
	}
	return nil
}

// Run drives ag to completion and returns the number of failed tasks,
// mirroring the agenda's own Run but named for call sites that only
// hold a Synchronizer.
func (s *Synchronizer) Run(ag *agenda.Agenda) int {
	return ag.Run()
}
