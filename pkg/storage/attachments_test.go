package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"report.pdf":            "report.pdf",
		"../../etc/passwd":      "passwd",
		`C:\Users\me\notes.txt`: "notes.txt",
		"Q3 plan (final).xlsx":  "Q3_plan__final_.xlsx",
		"..":                    "file",
		"":                      "file",
	}
	for in, want := range tests {
		if got := SanitizeFilename(in); got != want {
			t.Fatalf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAttachmentKeyIsScopedToThread(t *testing.T) {
	a := AttachmentKey("thread-1", "contract.pdf")
	b := AttachmentKey("thread-1", "contract.pdf")
	if !strings.HasPrefix(a, "emails/thread-1/") || !strings.HasSuffix(a, "-contract.pdf") {
		t.Fatalf("unexpected key %q", a)
	}
	if a == b {
		t.Fatalf("keys for repeated uploads should differ: %q", a)
	}
}

func TestMemoryStorePutPresignDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("http://files.local")
	if err := s.Put(ctx, "emails/t/a.txt", strings.NewReader("hello"), 5, "text/plain"); err != nil {
		t.Fatalf("put: %v", err)
	}
	data, ct, ok := s.Get("emails/t/a.txt")
	if !ok || string(data) != "hello" || ct != "text/plain" {
		t.Fatalf("get = %q %q %v", data, ct, ok)
	}
	url, err := s.PresignGet(ctx, "emails/t/a.txt", time.Minute)
	if err != nil || url != "http://files.local/emails/t/a.txt?expires=60" {
		t.Fatalf("presign = %q, %v", url, err)
	}
	if err := s.Delete(ctx, "emails/t/a.txt"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.PresignGet(ctx, "emails/t/a.txt", time.Minute); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreRejectsShortBody(t *testing.T) {
	s := NewMemoryStore("")
	if err := s.Put(context.Background(), "k", strings.NewReader("abc"), 10, ""); err == nil {
		t.Fatalf("expected size mismatch error")
	}
}
