package notify

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"rainfall-dashboard/internal/apperrors"
)

func TestFailureUsesClassifiedMessage(t *testing.T) {
	n := Failure(apperrors.New(apperrors.CodeRejected, "Year already exists"), "Error saving data")
	if n.Level != LevelError || n.Code != apperrors.CodeRejected || n.Message != "Year already exists" {
		t.Fatalf("notification: %+v", n)
	}
}

func TestFailureFallsBackForPlainErrors(t *testing.T) {
	n := Failure(errors.New("dial tcp: refused"), "Error fetching data")
	if n.Message != "Error fetching data" || n.Code != "" {
		t.Fatalf("notification: %+v", n)
	}
}

func TestRecorderErrors(t *testing.T) {
	var r Recorder
	r.Notify(Success("Data added"))
	r.Notify(Failure(apperrors.New(apperrors.CodeTransient, "Server temporarily unavailable"), ""))
	if len(r.All()) != 2 {
		t.Fatalf("all: %+v", r.All())
	}
	errs := r.Errors()
	if len(errs) != 1 || errs[0].Code != apperrors.CodeTransient {
		t.Fatalf("errors: %+v", errs)
	}
}

func TestLoggerWritesLevel(t *testing.T) {
	var buf bytes.Buffer
	l := Logger{Log: slog.New(slog.NewTextHandler(&buf, nil))}
	l.Notify(Failure(apperrors.New(apperrors.CodeAuthorization, "Admin access required"), ""))
	out := buf.String()
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "code=authorization") {
		t.Fatalf("log output: %s", out)
	}
}
