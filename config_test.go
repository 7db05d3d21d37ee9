package rhea

import (
	"strings"
	"testing"
	"time"
)

func TestParseSizePlainBytes(t *testing.T) {
	got, err := ParseSize("2048")
	if err != nil {
		t.Fatalf("ParseSize: %v", err)
	}
	if got != 2048 {
		t.Fatalf("got %d, want 2048", got)
	}
}

func TestParseSizeSuffixes(t *testing.T) {
	cases := map[string]int64{
		"1K":  1024,
		"1KB": 1024,
		"2M":  2 * 1024 * 1024,
		"1GB": 1024 * 1024 * 1024,
	}
	for in, want := range cases {
		got, err := ParseSize(in)
		if err != nil {
			t.Fatalf("ParseSize(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseSize(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseSizeRejectsEmptyAndUnknownSuffix(t *testing.T) {
	if _, err := ParseSize(""); err == nil {
		t.Fatalf("expected error for empty size string")
	}
	if _, err := ParseSize("5QQ"); err == nil {
		t.Fatalf("expected error for unknown suffix")
	}
}

func TestParseDurationGoStyleAndDaySuffix(t *testing.T) {
	d, err := ParseDuration("24h")
	if err != nil {
		t.Fatalf("ParseDuration: %v", err)
	}
	if d != 24*time.Hour {
		t.Fatalf("got %v, want 24h", d)
	}

	d, err = ParseDuration("7d")
	if err != nil {
		t.Fatalf("ParseDuration: %v", err)
	}
	if d != 7*24*time.Hour {
		t.Fatalf("got %v, want 7d", d)
	}
}

func TestParseDurationWeekAndYear(t *testing.T) {
	d, err := ParseDuration("2w")
	if err != nil {
		t.Fatalf("ParseDuration: %v", err)
	}
	if d != 14*24*time.Hour {
		t.Fatalf("got %v, want 14d", d)
	}

	d, err = ParseDuration("1y")
	if err != nil {
		t.Fatalf("ParseDuration: %v", err)
	}
	if d != 365*24*time.Hour {
		t.Fatalf("got %v, want 365d", d)
	}
}

func TestSanitizeFilenameStripsPathSeparatorsAndNulls(t *testing.T) {
	got := SanitizeFilename("app/../etc\x00passwd")
	if strings.Contains(got, "/") {
		t.Fatalf("expected no slash in sanitized name, got %q", got)
	}
	if strings.Contains(got, "\x00") {
		t.Fatalf("expected no null byte in sanitized name, got %q", got)
	}
}

func TestValidatePathLengthAcceptsNormalPath(t *testing.T) {
	if err := ValidatePathLength("some/relative/path"); err != nil {
		t.Fatalf("expected a short relative path to validate, got %v", err)
	}
}

func TestValidatePathLengthRejectsOverlongPath(t *testing.T) {
	long := strings.Repeat("a", 5000)
	if err := ValidatePathLength(long); err == nil {
		t.Fatalf("expected an error for a path exceeding the host limit")
	}
}

func TestGetDefaultFileMode(t *testing.T) {
	if GetDefaultFileMode() != 0o644 {
		t.Fatalf("got %o, want 0644", GetDefaultFileMode())
	}
}

func TestRetryFileOperationRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	err := RetryFileOperation(func() error {
		attempts++
		if attempts < 3 {
			return errTransient
		}
		return nil
	}, 5, time.Millisecond)
	if err != nil {
		t.Fatalf("RetryFileOperation: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("got %d attempts, want 3", attempts)
	}
}

func TestRetryFileOperationExhaustsRetries(t *testing.T) {
	attempts := 0
	err := RetryFileOperation(func() error {
		attempts++
		return errTransient
	}, 2, time.Millisecond)
	if err == nil {
		t.Fatalf("expected an error once retries are exhausted")
	}
	if attempts != 2 {
		t.Fatalf("got %d attempts, want 2", attempts)
	}
}

var errTransient = ErrIOError
