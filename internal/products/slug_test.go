package product

import "testing"

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Game Key":            "game-key",
		"  Steam -- Gift  ":   "steam-gift",
		"Café 2000!":          "caf-2000",
		"***":                 "",
		"already-a-slug":      "already-a-slug",
		"Windows 11 Pro (EU)": "windows-11-pro-eu",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}
