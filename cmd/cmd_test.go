package cmd

import (
	"reflect"
	"testing"
	"time"
)

func TestValidateAddr(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{name: "port only", addr: ":8000"},
		{name: "localhost", addr: "localhost:8000"},
		{name: "loopback ip", addr: "127.0.0.1:8000"},
		{name: "auto-assign port", addr: ":0"},
		{name: "missing port", addr: "localhost", wantErr: true},
		{name: "non-numeric port", addr: ":http", wantErr: true},
		{name: "port out of range", addr: ":70000", wantErr: true},
		{name: "host with spaces", addr: "bad host:8000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAddr(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateAddr(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
		})
	}
}

func TestParsePeriod(t *testing.T) {
	now := time.Date(2026, 8, 29, 15, 30, 0, 0, time.UTC)

	t.Run("defaults to yesterday-today", func(t *testing.T) {
		start, end, err := parsePeriod("", "", now)
		if err != nil {
			t.Fatalf("parsePeriod() error = %v", err)
		}
		wantStart := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
		wantEnd := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
		if !start.Equal(wantStart) || !end.Equal(wantEnd) {
			t.Errorf("parsePeriod() = %v..%v, want %v..%v", start, end, wantStart, wantEnd)
		}
	})

	t.Run("explicit bounds", func(t *testing.T) {
		start, end, err := parsePeriod("2026-08-01", "2026-08-15", now)
		if err != nil {
			t.Fatalf("parsePeriod() error = %v", err)
		}
		if start.Day() != 1 || end.Day() != 15 {
			t.Errorf("parsePeriod() = %v..%v", start, end)
		}
	})

	t.Run("malformed from", func(t *testing.T) {
		if _, _, err := parsePeriod("01.08.2026", "", now); err == nil {
			t.Error("parsePeriod() expected error for malformed --from")
		}
	})

	t.Run("malformed to", func(t *testing.T) {
		if _, _, err := parsePeriod("", "next week", now); err == nil {
			t.Error("parsePeriod() expected error for malformed --to")
		}
	})
}

func TestSplitHandles(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "empty", input: "", want: nil},
		{name: "single", input: "rbc_news", want: []string{"rbc_news"}},
		{name: "multiple with spaces", input: "rbc_news, tech_daily", want: []string{"rbc_news", "tech_daily"}},
		{name: "at-prefixed", input: "@rbc_news,@tech_daily", want: []string{"rbc_news", "tech_daily"}},
		{name: "blank entries dropped", input: "rbc_news,,  ,tech_daily", want: []string{"rbc_news", "tech_daily"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := splitHandles(tt.input); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitHandles(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestRenderMarkdown_NeverEmpty(t *testing.T) {
	const md = "# Heading\n\nSome **bold** text."
	if got := renderMarkdown(md); got == "" {
		t.Error("renderMarkdown() returned empty output")
	}
}
