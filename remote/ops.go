package remote

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"es3/internal/es3err"
)

// Ops exposes the signed request primitives: read_fully, upload_part,
// download_range, list_shallow, initiate/complete multipart,
// head, find_region, set_acl. The wire representation of list/initiate/
// complete XML is treated as an opaque parse/emit operation by the core;
// this is the concrete (minimal) implementation backing that contract.
type Ops struct {
	pool      *Pool
	signer    Signer
	accessKey string
	secretKey string
	useSSL    bool

	// TestEndpoint, when set, replaces the virtual-hosted-style AWS
	// endpoint with a fixed base URL (path-style, no bucket subdomain).
	// It exists so tests can point Ops at an httptest.Server; production
	// callers never set it.
	TestEndpoint string
}

// NewOps builds a remote-operations client over the given connection pool.
func NewOps(pool *Pool, accessKey, secretKey string, useSSL bool) *Ops {
	return &Ops{pool: pool, signer: DefaultSigner, accessKey: accessKey, secretKey: secretKey, useSSL: useSSL}
}

func (o *Ops) endpoint(path Path) string {
	if o.TestEndpoint != "" {
		return o.TestEndpoint + path.Key
	}
	scheme := "https"
	if !o.useSSL {
		scheme = "http"
	}
	host := "s3.amazonaws.com"
	if path.Zone != "" && path.Zone != "us-east-1" {
		host = fmt.Sprintf("s3-%s.amazonaws.com", path.Zone)
	}
	return fmt.Sprintf("%s://%s.%s%s", scheme, path.Bucket, host, path.Key)
}

func (o *Ops) do(verb string, path Path, query string, headers map[string]string, body io.Reader) (*http.Response, error) {
	h, err := o.pool.Acquire(path.Zone, path.Bucket)
	if err != nil {
		return nil, es3err.Wrap(es3err.LevelWarn, err, "acquire connection")
	}

	u := o.endpoint(path)
	if query != "" {
		u += "?" + query
	}
	req, err := http.NewRequest(verb, u, body)
	if err != nil {
		h.Release(true)
		return nil, es3err.Wrap(es3err.LevelFatal, err, "build request")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if err := o.signer.Sign(req, path, o.accessKey, o.secretKey); err != nil {
		h.Release(true)
		return nil, es3err.Wrap(es3err.LevelFatal, err, "sign request")
	}

	resp, err := h.Client().Do(req)
	if err != nil {
		h.Release(true)
		return nil, es3err.Wrap(es3err.LevelWarn, err, fmt.Sprintf("%s %s", verb, path))
	}
	h.Release(resp.StatusCode >= 500)
	return resp, nil
}

// ReadFully issues verb against path and returns the full response body.
func (o *Ops) ReadFully(verb string, path Path, query string, headers map[string]string) (string, error) {
	resp, err := o.do(verb, path, query, headers, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound && verb == "HEAD" {
		return "", nil
	}
	if cerr := es3err.ClassifyHTTPStatus(verb, path.String(), resp.StatusCode); cerr != nil {
		return "", cerr
	}
	return string(body), nil
}

// UploadPart PUTs data as one part of an in-progress multipart upload, or
// as a simple PUT when uploadID is empty and partNum is 0.
func (o *Ops) UploadPart(path Path, uploadID string, partNum int, data []byte, headers map[string]string) (string, error) {
	query := ""
	if uploadID != "" {
		query = fmt.Sprintf("partNumber=%d&uploadId=%s", partNum, uploadID)
	}
	resp, err := o.do("PUT", path, query, headers, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusConflict && uploadID != "" {
		// Re-read the part list; if it already carries this part number
		// treat the upload as complete for that part.
		if ok, verifyErr := o.partAlreadyPresent(path, uploadID, partNum); verifyErr == nil && ok {
			return resp.Header.Get("ETag"), nil
		}
	}
	if cerr := es3err.ClassifyHTTPStatus("PUT", path.String(), resp.StatusCode); cerr != nil {
		return "", cerr
	}
	return strings.Trim(resp.Header.Get("ETag"), `"`), nil
}

func (o *Ops) partAlreadyPresent(path Path, uploadID string, partNum int) (bool, error) {
	body, err := o.ReadFully("GET", path, "uploadId="+uploadID, nil)
	if err != nil {
		return false, err
	}
	var listing listPartsResult
	if err := xml.Unmarshal([]byte(body), &listing); err != nil {
		return false, err
	}
	for _, p := range listing.Parts {
		if p.PartNumber == partNum {
			return true, nil
		}
	}
	return false, nil
}

// DownloadRange issues a ranged GET, filling buf.
func (o *Ops) DownloadRange(path Path, offset uint64, buf []byte, headers map[string]string) error {
	if headers == nil {
		headers = map[string]string{}
	}
	size := len(buf)
	headers["Range"] = fmt.Sprintf("bytes=%d-%d", offset, offset+uint64(size)-1)

	resp, err := o.do("GET", path, "", headers, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if cerr := es3err.ClassifyHTTPStatus("GET", path.String(), resp.StatusCode); cerr != nil {
		return cerr
	}
	n, err := io.ReadFull(resp.Body, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return es3err.Wrap(es3err.LevelWarn, err, "read range body")
	}
	if n != size {
		return es3err.Warnf("short range read: got %d want %d", n, size)
	}
	return nil
}

// listBucketResult models the subset of the S3 ListBucket XML response
// needed for a shallow (delimiter="/") listing.
type listBucketResult struct {
	XMLName        xml.Name `xml:"ListBucketResult"`
	CommonPrefixes []struct {
		Prefix string `xml:"Prefix"`
	} `xml:"CommonPrefixes"`
	Contents []struct {
		Key          string `xml:"Key"`
		LastModified string `xml:"LastModified"`
		Size         uint64 `xml:"Size"`
	} `xml:"Contents"`
}

// ListShallow lists immediate children of path (delimiter="/"), building
// a Directory node, grounded on connection.h's list_files_shallow.
func (o *Ops) ListShallow(path Path) (*Directory, error) {
	prefix := strings.TrimPrefix(path.Key, "/")
	query := fmt.Sprintf("prefix=%s&delimiter=/", prefix)
	body, err := o.ReadFully("GET", Path{Zone: path.Zone, Bucket: path.Bucket}, query, nil)
	if err != nil {
		return nil, err
	}

	var parsed listBucketResult
	if err := xml.Unmarshal([]byte(body), &parsed); err != nil {
		return nil, es3err.Wrap(es3err.LevelFatal, err, "parse list-bucket response")
	}

	dir := NewDirectory(lastSegment(path.Key), path, nil)
	for _, cp := range parsed.CommonPrefixes {
		name := strings.TrimSuffix(strings.TrimPrefix(cp.Prefix, prefix), "/")
		if name == "" {
			continue
		}
		childPath := Path{Zone: path.Zone, Bucket: path.Bucket, Key: "/" + cp.Prefix}
		dir.Subdirs[name] = NewDirectory(name, childPath, dir)
	}
	for _, c := range parsed.Contents {
		name := strings.TrimPrefix(c.Key, prefix)
		if name == "" {
			continue
		}
		childPath := Path{Zone: path.Zone, Bucket: path.Bucket, Key: "/" + c.Key}
		dir.Files[name] = &File{Name: name, Absolute: childPath, MtimeStr: c.LastModified, Size: c.Size, Parent: dir}
	}
	return dir, nil
}

func lastSegment(key string) string {
	key = strings.TrimSuffix(key, "/")
	idx := strings.LastIndex(key, "/")
	if idx < 0 {
		return key
	}
	return key[idx+1:]
}

type initiateMultipartResult struct {
	XMLName  xml.Name `xml:"InitiateMultipartUploadResult"`
	UploadID string   `xml:"UploadId"`
}

// InitiateMultipart begins a multipart upload and returns its upload id.
func (o *Ops) InitiateMultipart(path Path, headers map[string]string) (string, error) {
	body, err := o.ReadFully("POST", path, "uploads", headers)
	if err != nil {
		return "", err
	}
	var parsed initiateMultipartResult
	if err := xml.Unmarshal([]byte(body), &parsed); err != nil {
		return "", es3err.Wrap(es3err.LevelFatal, err, "parse initiate-multipart response")
	}
	return parsed.UploadID, nil
}

type completeMultipartRequest struct {
	XMLName xml.Name `xml:"CompleteMultipartUpload"`
	Parts   []completePart `xml:"Part"`
}

type completePart struct {
	PartNumber int    `xml:"PartNumber"`
	ETag       string `xml:"ETag"`
}

type listPartsResult struct {
	XMLName xml.Name `xml:"ListPartsResult"`
	Parts   []struct {
		PartNumber int `xml:"PartNumber"`
	} `xml:"Part"`
}

// CompleteMultipart finishes a multipart upload with one etag per part,
// in ascending part-number order.
func (o *Ops) CompleteMultipart(path Path, uploadID string, etags []string) (string, error) {
	parts := make([]completePart, len(etags))
	for i, tag := range etags {
		parts[i] = completePart{PartNumber: i + 1, ETag: tag}
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })

	payload, err := xml.Marshal(completeMultipartRequest{Parts: parts})
	if err != nil {
		return "", es3err.Wrap(es3err.LevelFatal, err, "marshal complete-multipart request")
	}

	resp, err := o.do("POST", path, "uploadId="+uploadID, map[string]string{"Content-Type": "application/xml"}, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if cerr := es3err.ClassifyHTTPStatus("POST", path.String(), resp.StatusCode); cerr != nil {
		return "", cerr
	}
	return string(body), nil
}

// Head retrieves the custom metadata headers storing original mtime,
// mode, raw size, and compressed flag. 404 is translated into FileDescriptor{Found: false}.
func (o *Ops) Head(path Path) (FileDescriptor, error) {
	h, err := o.pool.Acquire(path.Zone, path.Bucket)
	if err != nil {
		return FileDescriptor{}, es3err.Wrap(es3err.LevelWarn, err, "acquire connection")
	}
	req, err := http.NewRequest("HEAD", o.endpoint(path), nil)
	if err != nil {
		h.Release(true)
		return FileDescriptor{}, es3err.Wrap(es3err.LevelFatal, err, "build HEAD request")
	}
	if err := o.signer.Sign(req, path, o.accessKey, o.secretKey); err != nil {
		h.Release(true)
		return FileDescriptor{}, es3err.Wrap(es3err.LevelFatal, err, "sign HEAD request")
	}
	resp, err := h.Client().Do(req)
	if err != nil {
		h.Release(true)
		return FileDescriptor{}, es3err.Wrap(es3err.LevelWarn, err, "HEAD "+path.String())
	}
	defer resp.Body.Close()
	h.Release(resp.StatusCode >= 500)

	if resp.StatusCode == http.StatusNotFound {
		return FileDescriptor{Found: false}, nil
	}
	if cerr := es3err.ClassifyHTTPStatus("HEAD", path.String(), resp.StatusCode); cerr != nil {
		return FileDescriptor{}, cerr
	}

	desc := FileDescriptor{Found: true}
	if v := resp.Header.Get("x-amz-meta-mtime"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			desc.Mtime = n
		}
	}
	if v := resp.Header.Get("x-amz-meta-mode"); v != "" {
		if n, err := strconv.ParseUint(v, 8, 32); err == nil {
			desc.Mode = uint32(n)
		}
	}
	if v := resp.Header.Get("x-amz-meta-compressed"); v != "" {
		desc.Compressed = true
	}
	if v := resp.Header.Get("x-amz-meta-raw-size"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			desc.RawSize = n
		}
	}
	if v := resp.Header.Get("Content-Length"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			desc.RemoteSize = n
			if !desc.Compressed {
				desc.RawSize = n
			}
		}
	}
	return desc, nil
}

type locationConstraint struct {
	XMLName xml.Name `xml:"LocationConstraint"`
	Region  string   `xml:",chardata"`
}

// FindRegion resolves the bucket's region, grounded on connection.h's
// find_region (used by every CLI command immediately after parse_path).
func (o *Ops) FindRegion(bucket string) (string, error) {
	body, err := o.ReadFully("GET", Path{Bucket: bucket}, "location", nil)
	if err != nil {
		return "", err
	}
	var loc locationConstraint
	if err := xml.Unmarshal([]byte(body), &loc); err != nil || loc.Region == "" {
		return "us-east-1", nil
	}
	return loc.Region, nil
}

// Delete removes a single object, used by the synchronizer's
// delete_missing pass and the `rm` command.
func (o *Ops) Delete(path Path) error {
	resp, err := o.do("DELETE", path, "", nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return es3err.ClassifyHTTPStatus("DELETE", path.String(), resp.StatusCode)
}

// SetACL applies a canned ACL to path, used by the publish command.
func (o *Ops) SetACL(path Path, acl string) error {
	_, err := o.ReadFully("PUT", path, "acl", map[string]string{"x-amz-acl": acl})
	return err
}
