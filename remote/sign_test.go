package remote

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func TestSignSetsAuthorizationHeader(t *testing.T) {
	req, err := http.NewRequest("GET", "http://example.com/my-bucket/key", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	path := Path{Bucket: "my-bucket", Key: "/key"}

	if err := DefaultSigner.Sign(req, path, "AKIDEXAMPLE", "secret"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	auth := req.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "AWS AKIDEXAMPLE:") {
		t.Fatalf("expected AWS-scheme Authorization header, got %q", auth)
	}
	if req.Header.Get("Date") == "" {
		t.Fatalf("expected Sign to set the Date header")
	}
}

func TestSignIsDeterministicForFixedDate(t *testing.T) {
	mkReq := func() *http.Request {
		req, _ := http.NewRequest("PUT", "http://example.com/b/k", nil)
		req.Header.Set("Date", "Tue, 27 Mar 2007 21:15:45 +0000")
		req.Header.Set("x-amz-meta-mtime", "123")
		return req
	}
	path := Path{Bucket: "b", Key: "/k"}

	canonA := canonicalize(mkReq(), path)
	canonB := canonicalize(mkReq(), path)
	if canonA != canonB {
		t.Fatalf("canonicalize should be pure given identical inputs")
	}
}

func TestCanonicalizeIncludesSignedSubResource(t *testing.T) {
	req, _ := http.NewRequest("PUT", "http://example.com/b/k?acl&ignored=1", nil)
	req.URL.RawQuery = url.Values{"acl": {""}, "ignored": {"1"}}.Encode()
	path := Path{Bucket: "b", Key: "/k"}

	canon := canonicalize(req, path)
	if !strings.Contains(canon, "?acl") {
		t.Fatalf("expected canonical string to include the acl sub-resource, got %q", canon)
	}
	if strings.Contains(canon, "ignored") {
		t.Fatalf("unsigned query params must not appear in the canonical string, got %q", canon)
	}
}

func TestCanonicalizeSortsAmzHeaders(t *testing.T) {
	req, _ := http.NewRequest("PUT", "http://example.com/b/k", nil)
	req.Header.Set("X-Amz-Meta-Zebra", "z")
	req.Header.Set("X-Amz-Meta-Apple", "a")
	path := Path{Bucket: "b", Key: "/k"}

	canon := canonicalize(req, path)
	zIdx := strings.Index(canon, "x-amz-meta-zebra")
	aIdx := strings.Index(canon, "x-amz-meta-apple")
	if aIdx == -1 || zIdx == -1 || aIdx > zIdx {
		t.Fatalf("expected x-amz headers sorted lexicographically in canonical string, got %q", canon)
	}
}
