package scope

import "testing"

type countingCloser struct {
	closes int
	err    error
}

func (c *countingCloser) Close() error {
	c.closes++
	return c.err
}

func TestScopeCloseIsIdempotentAndCloseOnce(t *testing.T) {
	s := New("task/1", nil)
	a := &countingCloser{}
	b := &countingCloser{}
	s.Add(a)
	s.Add(b)

	s.Close()
	s.Close() // no-op

	if a.closes != 1 || b.closes != 1 {
		t.Fatalf("expected each member closed exactly once, got a=%d b=%d", a.closes, b.closes)
	}
	if !s.IsClosed() {
		t.Fatalf("expected scope closed")
	}
}

func TestScopeAddAfterCloseClosesImmediately(t *testing.T) {
	s := New("task/1", nil)
	s.Close()

	c := &countingCloser{}
	s.Add(c)
	if c.closes != 1 {
		t.Fatalf("expected immediate close, got %d closes", c.closes)
	}
}

type recordingReporter struct {
	name string
	err  *MultiError
}

func (r *recordingReporter) ScopeCloseFailed(name string, err *MultiError) {
	r.name = name
	r.err = err
}

func TestScopeAggregatesCloseFailuresAsMultiError(t *testing.T) {
	reporter := &recordingReporter{}
	s := New("task/2", reporter)

	failErr := errFoo
	s.Add(&countingCloser{err: failErr})
	s.Add(&countingCloser{})
	s.Add(&countingCloser{err: failErr})

	s.Close()

	if reporter.err == nil {
		t.Fatalf("expected aggregated error to be reported")
	}
	if len(reporter.err.Errs) != 2 {
		t.Fatalf("expected 2 failures aggregated, got %d", len(reporter.err.Errs))
	}
	if reporter.name != "task/2" {
		t.Fatalf("got scope name %q", reporter.name)
	}
}

var errFoo = &simpleErr{"close failed"}

type simpleErr struct{ msg string }

func (e *simpleErr) Error() string { return e.msg }
