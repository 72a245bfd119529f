package database

import (
	"testing"
	"time"
)

func TestDetailRecord_WithDefaults(t *testing.T) {
	rec := DetailRecord{ImageID: "id1", Offense: "Theft", URL: ""}
	got := rec.WithDefaults()

	if got.ImageID != "id1" {
		t.Errorf("ImageID = %q, want id1", got.ImageID)
	}
	if got.Offense != "Theft" {
		t.Errorf("Offense = %q, want Theft", got.Offense)
	}
	for name, v := range map[string]string{
		"mittimus":            got.Mittimus,
		"class":               got.Class,
		"count":               got.Count,
		"custody_date":        got.CustodyDate,
		"sentence":            got.Sentence,
		"county":              got.County,
		"sentence_discharged": got.SentenceDischarged,
		"mark":                got.Mark,
		"url":                 got.URL,
	} {
		if v != "N/A" {
			t.Errorf("%s = %q, want N/A", name, v)
		}
	}

	if rec.Mittimus != "" {
		t.Error("WithDefaults must not mutate the receiver")
	}
}

func TestDetailRecord_HasURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"", false},
		{"N/A", false},
		{"https://cdn.example.com/a.jpg", true},
	}
	for _, tt := range tests {
		if got := (DetailRecord{URL: tt.url}).HasURL(); got != tt.want {
			t.Errorf("HasURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestResetToken_Usable(t *testing.T) {
	now := time.Now()
	used := now.Add(-time.Minute)

	tests := []struct {
		name  string
		token *ResetToken
		want  bool
	}{
		{"nil", nil, false},
		{"fresh", &ResetToken{ExpiresAt: now.Add(time.Hour)}, true},
		{"expired", &ResetToken{ExpiresAt: now.Add(-time.Second)}, false},
		{"used", &ResetToken{ExpiresAt: now.Add(time.Hour), UsedAt: &used}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.token.Usable(now); got != tt.want {
				t.Errorf("Usable() = %v, want %v", got, tt.want)
			}
		})
	}
}
