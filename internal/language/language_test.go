package language

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"already iso1", "en", "en"},
		{"iso2 code", "eng", "en"},
		{"bibliographic variant", "ger", "de"},
		{"full name", "Spanish", "es"},
		{"whitespace and case", "  FRA ", "fr"},
		{"unknown two letter passes through", "xx", "xx"},
		{"unknown longer form drops", "klingon", ""},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.in); got != tc.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName("en"); got != "English" {
		t.Fatalf("DisplayName(en) = %q", got)
	}
	if got := DisplayName("fre"); got != "French" {
		t.Fatalf("DisplayName(fre) = %q", got)
	}
	if got := DisplayName(""); got != "Unknown" {
		t.Fatalf("DisplayName(empty) = %q", got)
	}
	if got := DisplayName("xx"); got != "XX" {
		t.Fatalf("DisplayName(xx) = %q", got)
	}
}

func TestFromTags(t *testing.T) {
	cases := []struct {
		name string
		tags map[string]string
		want string
	}{
		{"matroska lowercase", map[string]string{"language": "eng"}, "en"},
		{"uppercase key", map[string]string{"LANGUAGE": "spa"}, "es"},
		{"nul padding stripped", map[string]string{"language": "deu\x00\x00"}, "de"},
		{"unrecognized value kept", map[string]string{"language": "mis"}, "mis"},
		{"no language tag", map[string]string{"title": "Main"}, ""},
		{"nil tags", nil, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FromTags(tc.tags); got != tc.want {
				t.Fatalf("FromTags(%v) = %q, want %q", tc.tags, got, tc.want)
			}
		})
	}
}
