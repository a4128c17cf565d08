package model

import (
	"errors"
	"testing"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
	}{
		{"match odds", CategoryMatchOdds},
		{"Match Odds ", CategoryMatchOdds},
		{"match-odds", CategoryMatchOdds},
		{"match_odds", CategoryMatchOdds},
		{"BOOKMAKER", CategoryBookmaker},
		{"fancy", CategoryFancy},
	}
	for _, tt := range tests {
		got, err := ParseCategory(tt.in)
		if err != nil {
			t.Errorf("ParseCategory(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCategory(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	_, err := ParseCategory("toss")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for unknown category, got %v", err)
	}
}

func TestParseSide(t *testing.T) {
	if s, err := ParseSide(" Back"); err != nil || s != SideBack {
		t.Errorf("ParseSide(Back) = %q, %v", s, err)
	}
	if s, err := ParseSide("lay"); err != nil || s != SideLay {
		t.Errorf("ParseSide(lay) = %q, %v", s, err)
	}
	// "yes"/"no" exist in the legacy schema but are not placeable sides.
	if _, err := ParseSide("yes"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for yes, got %v", err)
	}
}

func TestParseStatus(t *testing.T) {
	if _, err := ParseStatus("won"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := ParseStatus("void"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}
