// Package remote implements the object-store side of es3: path parsing,
// the connection pool, the signed HTTP operations, and the in-memory
// listing tree produced by the synchronizer's remote walk.
package remote

import (
	"fmt"
	"strings"
)

// Path identifies an object or prefix: (zone, bucket, key). Key uses "/"
// separators and may end with "/" to denote a directory prefix. Two paths
// order lexicographically by (zone, bucket, key).
type Path struct {
	Zone   string
	Bucket string
	Key    string
}

// Less implements the lexicographic (zone, bucket, key) ordering.
func (p Path) Less(other Path) bool {
	if p.Zone != other.Zone {
		return p.Zone < other.Zone
	}
	if p.Bucket != other.Bucket {
		return p.Bucket < other.Bucket
	}
	return p.Key < other.Key
}

func (p Path) String() string {
	return fmt.Sprintf("s3://%s%s", p.Bucket, p.Key)
}

// Join derives a child path by appending name, inserting exactly one "/"
// separator, mirroring connection.h's derive() helper.
func (p Path) Join(name string) Path {
	res := p
	if name == "" {
		return res
	}
	if strings.HasSuffix(res.Key, "/") || strings.HasPrefix(name, "/") {
		res.Key += name
	} else {
		res.Key += "/" + name
	}
	return res
}

// ParsePath parses a "s3://bucket/key" URL into a Path. The zone is left
// empty; callers resolve it via Ops.FindRegion before using the path for
// any signed request, matching connection.h's parse_path plus the
// region-lookup step every CLI command performs immediately after parsing.
func ParsePath(url string) (Path, error) {
	const scheme = "s3://"
	if !strings.HasPrefix(url, scheme) {
		return Path{}, fmt.Errorf("not an s3 path: %s", url)
	}
	rest := url[len(scheme):]
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Path{}, fmt.Errorf("missing bucket in path: %s", url)
	}
	if key != "" && !strings.HasPrefix(key, "/") {
		key = "/" + key
	}
	return Path{Bucket: bucket, Key: key}, nil
}

// IsRemote reports whether the given CLI argument names a remote path
// rather than a local filesystem path.
func IsRemote(arg string) bool {
	return strings.HasPrefix(arg, "s3://")
}

// FileDescriptor is the result of a HEAD operation: (mtime, raw_size,
// remote_size, mode, compressed, found). raw_size != remote_size only
// when compressed; found=false is a sentinel, not a failure.
type FileDescriptor struct {
	Mtime      int64
	RawSize    uint64
	RemoteSize uint64
	Mode       uint32
	Compressed bool
	Found      bool
}

// Directory is a node in the in-memory listing tree produced by one
// remote walk. Children are owned by their parent; Parent is a
// non-owning back-reference broken by using a plain pointer populated
// only during tree construction and never dereferenced during teardown
// (Go's GC makes the original's weak_ptr unnecessary).
type Directory struct {
	Name     string
	Absolute Path
	Files    map[string]*File
	Subdirs  map[string]*Directory
	Parent   *Directory
}

// NewDirectory creates an empty listing node.
func NewDirectory(name string, abs Path, parent *Directory) *Directory {
	return &Directory{
		Name:     name,
		Absolute: abs,
		Files:    make(map[string]*File),
		Subdirs:  make(map[string]*Directory),
		Parent:   parent,
	}
}

// File is a leaf entry in the listing tree.
type File struct {
	Name     string
	Absolute Path
	MtimeStr string
	Size     uint64
	Parent   *Directory
}
