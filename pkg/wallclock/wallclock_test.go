package wallclock

import (
	"testing"
	"time"

	"github.com/caseload/caseload/internal/platform/apperr"
)

func TestStorageDate_UsesLocalComponents(t *testing.T) {
	// 23:30 on March 9th in UTC-8 is already March 10th in UTC.
	loc := time.FixedZone("PST", -8*3600)
	picked := time.Date(2025, time.March, 9, 23, 30, 0, 0, loc)

	if got := StorageDate(picked); got != "2025-03-09" {
		t.Errorf("expected 2025-03-09, got %s", got)
	}
	if got := StorageDate(picked.UTC()); got != "2025-03-10" {
		t.Errorf("sanity: expected UTC form 2025-03-10, got %s", got)
	}
}

func TestStorageDate_ZeroPads(t *testing.T) {
	if got := StorageDate(time.Date(987, time.January, 5, 0, 0, 0, 0, time.UTC)); got != "0987-01-05" {
		t.Errorf("expected 0987-01-05, got %s", got)
	}
}

func TestStorageTime(t *testing.T) {
	tests := []struct {
		h, m int
		want string
	}{
		{0, 0, "00:00"},
		{9, 5, "09:05"},
		{14, 0, "14:00"},
		{23, 59, "23:59"},
	}
	for _, tt := range tests {
		got := StorageTime(time.Date(2025, 1, 1, tt.h, tt.m, 42, 0, time.UTC))
		if got != tt.want {
			t.Errorf("expected %s, got %s", tt.want, got)
		}
	}
}

func TestParseDate_RoundTrip(t *testing.T) {
	zones := []*time.Location{
		time.UTC,
		time.FixedZone("west", -11*3600),
		time.FixedZone("east", 14*3600),
	}
	for _, loc := range zones {
		for _, d := range []time.Time{
			time.Date(2025, time.March, 10, 0, 0, 0, 0, loc),
			time.Date(2024, time.February, 29, 23, 59, 0, 0, loc),
			time.Date(1999, time.December, 31, 12, 0, 0, 0, loc),
		} {
			want := StorageDate(d)
			parsed, err := ParseDate(want)
			if err != nil {
				t.Fatalf("ParseDate(%s): %v", want, err)
			}
			if got := StorageDate(parsed); got != want {
				t.Errorf("round trip: expected %s, got %s", want, got)
			}
		}
	}
}

func TestParseDate_Rejects(t *testing.T) {
	for _, s := range []string{"", "2025-3-10", "2025/03/10", "2025-02-30", "2025-13-01", "10-03-2025", "2025-03-10T00:00"} {
		_, err := ParseDate(s)
		if err == nil {
			t.Errorf("expected error for %q", s)
			continue
		}
		if !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("expected validation error for %q, got %v", s, err)
		}
	}
}

func TestParseTime(t *testing.T) {
	h, m, err := ParseTime("07:45")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h != 7 || m != 45 {
		t.Errorf("expected 7:45, got %d:%d", h, m)
	}
}

func TestParseTime_Rejects(t *testing.T) {
	for _, s := range []string{"", "9:05", "24:00", "12:60", "12-30", "ab:cd", "12:3", "12:300"} {
		if _, _, err := ParseTime(s); !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("expected validation error for %q, got %v", s, err)
		}
	}
}

func TestCombine(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	got, err := Combine("2025-03-10", "14:00", loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2025, time.March, 10, 14, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if got.Location() != loc {
		t.Error("expected result in the requested location")
	}
}

func TestCombine_InvalidInput(t *testing.T) {
	if _, err := Combine("2025-03-10", "25:00", time.UTC); err == nil {
		t.Error("expected error for invalid time")
	}
	if _, err := Combine("not-a-date", "10:00", time.UTC); err == nil {
		t.Error("expected error for invalid date")
	}
}

func TestCombine_OrdersLikeStrings(t *testing.T) {
	a, _ := Combine("2025-03-10", "09:00", time.UTC)
	b, _ := Combine("2025-03-10", "14:00", time.UTC)
	c, _ := Combine("2025-03-11", "08:00", time.UTC)
	if !a.Before(b) || !b.Before(c) {
		t.Error("expected chronological order a < b < c")
	}
}

func TestIsToday(t *testing.T) {
	now := time.Date(2025, time.March, 10, 0, 5, 0, 0, time.FixedZone("west", -5*3600))
	if !IsToday("2025-03-10", now) {
		t.Error("expected 2025-03-10 to be today")
	}
	if IsToday("2025-03-09", now) {
		t.Error("expected 2025-03-09 not to be today")
	}
	if Today(now) != "2025-03-10" {
		t.Errorf("expected today 2025-03-10, got %s", Today(now))
	}
}

func TestNormalize(t *testing.T) {
	if d, err := NormalizeDate("2025-03-10"); err != nil || d != "2025-03-10" {
		t.Errorf("unexpected NormalizeDate result %q, %v", d, err)
	}
	if _, err := NormalizeTime("7:00"); err == nil {
		t.Error("expected error for unpadded hour")
	}
}
