package remote

import "testing"

func TestParsePath(t *testing.T) {
	p, err := ParsePath("s3://my-bucket/dir/file.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Bucket != "my-bucket" || p.Key != "/dir/file.txt" {
		t.Fatalf("got bucket=%q key=%q", p.Bucket, p.Key)
	}
}

func TestParsePathBucketOnly(t *testing.T) {
	p, err := ParsePath("s3://my-bucket")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Bucket != "my-bucket" || p.Key != "" {
		t.Fatalf("got bucket=%q key=%q", p.Bucket, p.Key)
	}
}

func TestParsePathRejectsNonRemote(t *testing.T) {
	if _, err := ParsePath("/local/path"); err == nil {
		t.Fatalf("expected an error for a non-s3:// path")
	}
	if _, err := ParsePath("s3:///leading-slash-bucket"); err == nil {
		t.Fatalf("expected an error for a missing bucket")
	}
}

func TestIsRemote(t *testing.T) {
	if !IsRemote("s3://bucket/key") {
		t.Fatalf("expected s3:// path to be remote")
	}
	if IsRemote("./local/file") {
		t.Fatalf("expected local path to not be remote")
	}
}

func TestPathJoin(t *testing.T) {
	p := Path{Bucket: "b", Key: "/dir"}
	if got := p.Join("file.txt").Key; got != "/dir/file.txt" {
		t.Fatalf("got %q", got)
	}

	root := Path{Bucket: "b", Key: "/"}
	if got := root.Join("file.txt").Key; got != "/file.txt" {
		t.Fatalf("got %q", got)
	}

	if got := p.Join("").Key; got != "/dir" {
		t.Fatalf("Join with empty name should be a no-op, got %q", got)
	}
}

func TestPathLess(t *testing.T) {
	a := Path{Zone: "us-east-1", Bucket: "b", Key: "/a"}
	b := Path{Zone: "us-east-1", Bucket: "b", Key: "/z"}
	if !a.Less(b) || b.Less(a) {
		t.Fatalf("expected a < b by key")
	}

	c := Path{Zone: "eu-west-1", Bucket: "z", Key: "/a"}
	if !c.Less(a) {
		t.Fatalf("expected zone to dominate ordering")
	}
}

func TestPathString(t *testing.T) {
	p := Path{Bucket: "my-bucket", Key: "/dir/file.txt"}
	if got := p.String(); got != "s3://my-bucket/dir/file.txt" {
		t.Fatalf("got %q", got)
	}
}
