package zerror

import (
	"errors"
	"testing"
)

func TestThrowableRoundTrip(t *testing.T) {
	orig := Throwable{
		ClassName: "java.lang.IllegalStateException",
		Message:   "boom",
		Stack:     "at foo\nat bar",
		Cause: &Throwable{
			ClassName: "java.io.IOException",
			Message:   "disk full",
		},
	}

	raw, err := EncodeThrowable(orig)
	if err != nil {
		t.Fatalf("EncodeThrowable: %v", err)
	}

	appErr, err := DecodeThrowable(raw)
	if err != nil {
		t.Fatalf("DecodeThrowable: %v", err)
	}

	if appErr.Throwable.ClassName != orig.ClassName || appErr.Throwable.Message != orig.Message {
		t.Fatalf("got %+v, want %+v", appErr.Throwable, orig)
	}
	if appErr.Throwable.Cause == nil || appErr.Throwable.Cause.ClassName != orig.Cause.ClassName {
		t.Fatalf("cause not preserved: %+v", appErr.Throwable.Cause)
	}
}

func TestToThrowablePreservesCauseChain(t *testing.T) {
	root := errors.New("root cause")
	wrapped := &Error{Kind: KindTransport, Op: "invoke", Err: root}

	th := ToThrowable(wrapped)
	if th.Cause == nil {
		t.Fatalf("expected a cause to be captured")
	}
	if th.Cause.Message != "root cause" {
		t.Fatalf("got %q, want %q", th.Cause.Message, "root cause")
	}
}

func TestApplicationErrorRoundTripsVerbatim(t *testing.T) {
	orig := Throwable{ClassName: "Oops", Message: "bad"}
	appErr := &ApplicationError{Throwable: orig}

	got := ToThrowable(appErr)
	if got != orig {
		t.Fatalf("got %+v, want %+v", got, orig)
	}
}
