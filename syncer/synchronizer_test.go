package syncer

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"es3/agenda"
	"es3/remote"
	"es3/transfer"
)

func TestFilterExcludedDominatesIncluded(t *testing.T) {
	f := NewFilter([]string{"**/*.txt"}, []string{"**/*.secret.txt"})

	cases := []struct {
		path string
		want bool
	}{
		{"a.txt", true},
		{"dir/b.txt", true},
		{"dir/b.secret.txt", false},
		{"c.bin", false},
	}
	for _, c := range cases {
		if got := f.Allow(c.path); got != c.want {
			t.Errorf("Allow(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestFilterNoIncludeAllowsEverythingNotExcluded(t *testing.T) {
	f := NewFilter(nil, []string{"*.tmp"})
	if !f.Allow("a.txt") {
		t.Error("expected a.txt to be allowed with no include patterns")
	}
	if f.Allow("a.tmp") {
		t.Error("expected a.tmp to be excluded")
	}
}

// fakeBucket is a minimal in-memory S3 object store backing a
// httptest.Server, just enough REST surface (GET listing, HEAD, GET
// range, PUT, DELETE) for a synchronizer pass to run end to end.
type fakeBucket struct {
	store map[string][]byte
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{store: make(map[string][]byte)}
}

func (b *fakeBucket) server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if r.URL.Path == "/" {
				b.list(w, r)
				return
			}
			b.get(w, r)
		case http.MethodHead:
			b.head(w, r)
		case http.MethodPut:
			b.put(w, r)
		case http.MethodDelete:
			delete(b.store, r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		}
	})
	return httptest.NewServer(mux)
}

func (b *fakeBucket) list(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	seen := make(map[string]bool)
	var commonPrefixes, contents strings.Builder
	keys := make([]string, 0, len(b.store))
	for k := range b.store {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		trimmed := strings.TrimPrefix(k, "/")
		if !strings.HasPrefix(trimmed, prefix) {
			continue
		}
		rest := trimmed[len(prefix):]
		if idx := strings.Index(rest, "/"); idx >= 0 {
			sub := prefix + rest[:idx+1]
			if !seen[sub] {
				seen[sub] = true
				commonPrefixes.WriteString("<CommonPrefixes><Prefix>" + sub + "</Prefix></CommonPrefixes>")
			}
			continue
		}
		contents.WriteString("<Contents><Key>" + trimmed + "</Key><LastModified>2024-01-01T00:00:00.000Z</LastModified><Size>" +
			strconv.Itoa(len(b.store[k])) + "</Size></Contents>")
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Write([]byte("<ListBucketResult>" + commonPrefixes.String() + contents.String() + "</ListBucketResult>"))
}

func (b *fakeBucket) head(w http.ResponseWriter, r *http.Request) {
	data, ok := b.store[r.URL.Path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("x-amz-meta-mtime", "0")
	w.Header().Set("x-amz-meta-mode", "644")
	w.Header().Set("x-amz-meta-raw-size", strconv.Itoa(len(data)))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
}

func (b *fakeBucket) get(w http.ResponseWriter, r *http.Request) {
	data, ok := b.store[r.URL.Path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	rng := r.Header.Get("Range")
	if rng == "" {
		w.Write(data)
		return
	}
	const p = "bytes="
	start, end := 0, len(data)-1
	if strings.HasPrefix(rng, p) {
		parts := strings.SplitN(rng[len(p):], "-", 2)
		start, _ = strconv.Atoi(parts[0])
		if len(parts) > 1 && parts[1] != "" {
			if e, err := strconv.Atoi(parts[1]); err == nil && e < len(data) {
				end = e
			}
		}
	}
	w.WriteHeader(http.StatusPartialContent)
	w.Write(data[start : end+1])
}

func (b *fakeBucket) put(w http.ResponseWriter, r *http.Request) {
	buf := make([]byte, r.ContentLength)
	n := 0
	for n < len(buf) {
		read, err := r.Body.Read(buf[n:])
		n += read
		if err != nil {
			break
		}
	}
	b.store[r.URL.Path] = buf[:n]
	w.Header().Set("ETag", `"etag"`)
	w.WriteHeader(http.StatusOK)
}

// newSyncTestHarness wires a Synchronizer against a fakeBucket and an
// empty local temp directory.
func newSyncTestHarness(t *testing.T, dir Direction, deleteMissing bool) (*Synchronizer, *fakeBucket, string, func()) {
	t.Helper()
	bucket := newFakeBucket()
	srv := bucket.server()

	pool := remote.NewPool("", 5*time.Second)
	ops := remote.NewOps(pool, "ak", "sk", false)
	ops.TestEndpoint = srv.URL

	localRoot := t.TempDir()
	uploader := transfer.NewUploader(ops, t.TempDir(), 1)
	uploader.Quiet = true
	downloader := transfer.NewDownloader(ops, t.TempDir())
	downloader.Quiet = true

	s := New(ops, uploader, downloader, NewFilter(nil, nil), dir, deleteMissing, false)
	return s, bucket, localRoot, srv.Close
}

func runSync(t *testing.T, s *Synchronizer, localRoot string, remotePath remote.Path) {
	t.Helper()
	ag := agenda.New(agenda.Limits{Unbound: 2, CPUBound: 2, IOBound: 2}, 1024*1024, 8, true, true)
	if err := s.CreateSchedule(ag, localRoot, remotePath); err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	if failed := ag.Run(); failed != 0 {
		t.Fatalf("sync run: %d tasks failed", failed)
	}
}

func TestSyncPushUploadsNewLocalFile(t *testing.T) {
	s, bucket, localRoot, closeSrv := newSyncTestHarness(t, Push, false)
	defer closeSrv()

	if err := os.WriteFile(filepath.Join(localRoot, "a.txt"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	runSync(t, s, localRoot, remote.Path{Bucket: "b", Key: "/"})

	if _, ok := bucket.store["/a.txt"]; !ok {
		t.Fatal("expected a.txt to be uploaded")
	}
}

func TestSyncPullDownloadsNewRemoteFile(t *testing.T) {
	s, bucket, localRoot, closeSrv := newSyncTestHarness(t, Pull, false)
	defer closeSrv()

	bucket.store["/a.txt"] = []byte("hello from remote")
	runSync(t, s, localRoot, remote.Path{Bucket: "b", Key: "/"})

	got, err := os.ReadFile(filepath.Join(localRoot, "a.txt"))
	if err != nil {
		t.Fatalf("expected a.txt to be downloaded: %v", err)
	}
	if string(got) != "hello from remote" {
		t.Fatalf("got %q", got)
	}
}

func TestSyncPushDeleteMissingRemovesRemoteOnlyFile(t *testing.T) {
	s, bucket, localRoot, closeSrv := newSyncTestHarness(t, Push, true)
	defer closeSrv()

	bucket.store["/stale.txt"] = []byte("gone soon")
	runSync(t, s, localRoot, remote.Path{Bucket: "b", Key: "/"})

	if _, ok := bucket.store["/stale.txt"]; ok {
		t.Fatal("expected remote-only file to be deleted with --delete under push")
	}
}

func TestSyncPushWithoutDeleteMissingLeavesRemoteOnlyFile(t *testing.T) {
	s, bucket, localRoot, closeSrv := newSyncTestHarness(t, Push, false)
	defer closeSrv()

	bucket.store["/stale.txt"] = []byte("still here")
	runSync(t, s, localRoot, remote.Path{Bucket: "b", Key: "/"})

	if _, ok := bucket.store["/stale.txt"]; !ok {
		t.Fatal("expected remote-only file to survive a push without --delete")
	}
}

func TestSyncPullDeleteMissingRemovesLocalOnlyFile(t *testing.T) {
	s, _, localRoot, closeSrv := newSyncTestHarness(t, Pull, true)
	defer closeSrv()

	localOnly := filepath.Join(localRoot, "local-only.txt")
	if err := os.WriteFile(localOnly, []byte("extra"), 0644); err != nil {
		t.Fatal(err)
	}
	runSync(t, s, localRoot, remote.Path{Bucket: "b", Key: "/"})

	if _, err := os.Stat(localOnly); !os.IsNotExist(err) {
		t.Fatal("expected local-only file to be deleted under pull --delete")
	}
}

func TestSyncPullWithoutDeleteMissingLeavesLocalOnlyFile(t *testing.T) {
	s, _, localRoot, closeSrv := newSyncTestHarness(t, Pull, false)
	defer closeSrv()

	localOnly := filepath.Join(localRoot, "local-only.txt")
	if err := os.WriteFile(localOnly, []byte("extra"), 0644); err != nil {
		t.Fatal(err)
	}
	runSync(t, s, localRoot, remote.Path{Bucket: "b", Key: "/"})

	if _, err := os.Stat(localOnly); err != nil {
		t.Fatal("expected local-only file to survive a pull without --delete")
	}
}

func TestSyncLocalDirRemoteFileConflictWarnsWithoutDelete(t *testing.T) {
	s, bucket, localRoot, closeSrv := newSyncTestHarness(t, Push, false)
	defer closeSrv()

	if err := os.Mkdir(filepath.Join(localRoot, "item"), 0755); err != nil {
		t.Fatal(err)
	}
	bucket.store["/item"] = []byte("i'm a file remotely")
	runSync(t, s, localRoot, remote.Path{Bucket: "b", Key: "/"})

	if string(bucket.store["/item"]) != "i'm a file remotely" {
		t.Fatal("expected the conflicting remote file to be left alone without --delete")
	}
}

func TestSyncLocalDirRemoteFileConflictReplacesWithDelete(t *testing.T) {
	s, bucket, localRoot, closeSrv := newSyncTestHarness(t, Push, true)
	defer closeSrv()

	if err := os.Mkdir(filepath.Join(localRoot, "item"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(localRoot, "item", "child.txt"), []byte("child"), 0644); err != nil {
		t.Fatal(err)
	}
	bucket.store["/item"] = []byte("i'm a file remotely")
	runSync(t, s, localRoot, remote.Path{Bucket: "b", Key: "/"})

	if _, ok := bucket.store["/item/child.txt"]; !ok {
		t.Fatal("expected the local directory to be uploaded in place of the conflicting remote file")
	}
}

func TestSyncLocalFileRemoteDirConflictWarnsWithoutDelete(t *testing.T) {
	s, bucket, localRoot, closeSrv := newSyncTestHarness(t, Push, false)
	defer closeSrv()

	if err := os.WriteFile(filepath.Join(localRoot, "item"), []byte("i'm a file locally"), 0644); err != nil {
		t.Fatal(err)
	}
	bucket.store["/item/child.txt"] = []byte("child")
	runSync(t, s, localRoot, remote.Path{Bucket: "b", Key: "/"})

	if _, ok := bucket.store["/item/child.txt"]; !ok {
		t.Fatal("expected the conflicting remote directory to be left alone without --delete")
	}
}
