package remote

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Signer computes the request signature as an opaque primitive
// supplied by the environment: a signature over (verb,
// canonical resource, date, sub-resource, and signed custom headers).
type Signer interface {
	Sign(req *http.Request, path Path, accessKey, secretKey string) error
}

// awsRESTSigner implements the classic Amazon S3 REST authorization
// scheme (HMAC-SHA1 over a canonicalized string), the same family of
// signature connection.h's sign()/authenticate_req() compute.
type awsRESTSigner struct{}

// DefaultSigner is the signer used by Ops when none is supplied.
var DefaultSigner Signer = awsRESTSigner{}

var signedSubResources = map[string]bool{
	"acl": true, "location": true, "uploads": true, "uploadId": true,
	"partNumber": true, "delete": true,
}

func (awsRESTSigner) Sign(req *http.Request, path Path, accessKey, secretKey string) error {
	date := time.Now().UTC().Format(http.TimeFormat)
	req.Header.Set("Date", date)

	canonical := canonicalize(req, path)
	mac := hmac.New(sha1.New, []byte(secretKey))
	mac.Write([]byte(canonical))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req.Header.Set("Authorization", "AWS "+accessKey+":"+signature)
	return nil
}

func canonicalize(req *http.Request, path Path) string {
	var b strings.Builder
	b.WriteString(req.Method)
	b.WriteByte('\n')
	b.WriteString(req.Header.Get("Content-MD5"))
	b.WriteByte('\n')
	b.WriteString(req.Header.Get("Content-Type"))
	b.WriteByte('\n')
	b.WriteString(req.Header.Get("Date"))
	b.WriteByte('\n')

	// Canonicalized x-amz headers: lower-cased, sorted, comma-joined values.
	var amzKeys []string
	amzVals := make(map[string]string)
	for k, v := range req.Header {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "x-amz-") {
			amzKeys = append(amzKeys, lk)
			amzVals[lk] = strings.Join(v, ",")
		}
	}
	sort.Strings(amzKeys)
	for _, k := range amzKeys {
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(amzVals[k])
		b.WriteByte('\n')
	}

	b.WriteString("/" + path.Bucket + path.Key)

	if req.URL != nil && req.URL.RawQuery != "" {
		var subKeys []string
		q := req.URL.Query()
		for k := range q {
			if signedSubResources[k] {
				subKeys = append(subKeys, k)
			}
		}
		sort.Strings(subKeys)
		for i, k := range subKeys {
			if i == 0 {
				b.WriteByte('?')
			} else {
				b.WriteByte('&')
			}
			b.WriteString(k)
			if v := q.Get(k); v != "" {
				b.WriteByte('=')
				b.WriteString(v)
			}
		}
	}

	return b.String()
}
