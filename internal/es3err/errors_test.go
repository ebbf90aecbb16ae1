package es3err

import "testing"

func TestRetryable(t *testing.T) {
	if !Warnf("x").Retryable() {
		t.Fatalf("Warn should be retryable")
	}
	if !Infof("x").Retryable() {
		t.Fatalf("None should be retryable")
	}
	if Fatalf("x").Retryable() {
		t.Fatalf("Fatal should not be retryable")
	}
}

func TestWrapNilCauseReturnsNil(t *testing.T) {
	if Wrap(LevelFatal, nil, "ctx") != nil {
		t.Fatalf("expected nil for nil cause")
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := Fatalf("underlying")
	wrapped := Wrap(LevelWarn, cause, "doing the thing")
	if wrapped.Unwrap() != cause {
		t.Fatalf("Unwrap did not return the original cause")
	}
	if wrapped.Level != LevelWarn {
		t.Fatalf("expected wrapped level to be the level passed to Wrap, got %v", wrapped.Level)
	}
}

func TestWithAttachesContext(t *testing.T) {
	e := Fatalf("bad").With("status", "404")
	if e.Context["status"] != "404" {
		t.Fatalf("expected context status=404, got %q", e.Context["status"])
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	cases := []struct {
		status int
		level  Level
	}{
		{500, LevelWarn},
		{503, LevelWarn},
		{404, LevelFatal},
		{403, LevelFatal},
	}
	for _, c := range cases {
		e := ClassifyHTTPStatus("GET", "/bucket/key", c.status)
		if e == nil {
			t.Fatalf("status %d: expected non-nil error", c.status)
		}
		if e.Level != c.level {
			t.Fatalf("status %d: expected level %v, got %v", c.status, c.level, e.Level)
		}
	}
	if e := ClassifyHTTPStatus("GET", "/bucket/key", 200); e != nil {
		t.Fatalf("status 200: expected nil, got %v", e)
	}
}

func TestClassifyHTTPStatus404CarriesStatusContext(t *testing.T) {
	e := ClassifyHTTPStatus("HEAD", "/bucket/key", 404)
	if e.Context["status"] != "404" {
		t.Fatalf("expected status context on 404, got %v", e.Context)
	}
}

func TestAsEs3Error(t *testing.T) {
	var err error = Fatalf("boom")
	e, ok := AsEs3Error(err)
	if !ok || e.Level != LevelFatal {
		t.Fatalf("expected to recover the *Error, got %v, %v", e, ok)
	}
	if _, ok := AsEs3Error(nil); ok {
		t.Fatalf("expected false for a plain nil error")
	}
}
