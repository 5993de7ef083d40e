package main

import (
	"testing"

	"tinyserve/internal/config"
)

func TestSplitCSV(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , b , c ", []string{"a", "b", "c"}},
		{"a,,c", []string{"a", "c"}},
		{"", nil},
	}
	for _, c := range cases {
		got := splitCSV(c.in)
		if len(got) != len(c.want) {
			t.Fatalf("%q -> %v, want %v", c.in, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("%q -> %v, want %v", c.in, got, c.want)
			}
		}
	}
}

func TestServeFlags_CORSOriginsSetter(t *testing.T) {
	f := &serveFlags{corsOrigins: " http://a , ,http://b"}
	var cfg config.Config
	f.setters()["cors-origins"](&cfg)
	want := []string{"http://a", "http://b"}
	if len(cfg.CORSOrigins) != len(want) {
		t.Fatalf("cors origins = %v, want %v", cfg.CORSOrigins, want)
	}
	for i := range want {
		if cfg.CORSOrigins[i] != want[i] {
			t.Fatalf("cors origins = %v, want %v", cfg.CORSOrigins, want)
		}
	}

	f.corsOrigins = ""
	f.setters()["cors-origins"](&cfg)
	if cfg.CORSOrigins != nil {
		t.Fatalf("empty flag should clear origins, got %v", cfg.CORSOrigins)
	}
}
