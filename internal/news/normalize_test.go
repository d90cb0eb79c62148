package news

import (
	"testing"

	"github.com/deusflow/nieuwsmetai/internal/rss"
)

func TestTitleKey(t *testing.T) {
	cases := map[string]string{
		"  Storm   Op\tKomst \n": "storm op komst",
		"":                       "",
		"   ":                    "",
		"België wint":            "belgië wint",
	}
	for in, want := range cases {
		if got := TitleKey(in); got != want {
			t.Errorf("TitleKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHTMLToText(t *testing.T) {
	in := `<div><p>Eerste   alinea.</p><script>var x = 1;</script><p>Tweede &amp; laatste</p></div>`
	got := HTMLToText(in)
	want := "Eerste alinea.\nTweede & laatste"
	if got != want {
		t.Errorf("HTMLToText = %q, want %q", got, want)
	}
	if HTMLToText("") != "" {
		t.Error("empty input should give empty output")
	}
	if got := HTMLToText("platte tekst"); got != "platte tekst" {
		t.Errorf("plain text mangled: %q", got)
	}
}

func TestNormalizeUsesContentBeforeSummary(t *testing.T) {
	c := Normalize(rss.Entry{
		Link:    " https://ex.com/a ",
		Title:   "Titel  Hier",
		Content: "<p>volledige inhoud</p>",
		Summary: "<p>samenvatting</p>",
		Tags:    []string{"Binnenland"},
	})
	if c.URL != "https://ex.com/a" {
		t.Errorf("URL = %q", c.URL)
	}
	if c.TitleKey != "titel hier" {
		t.Errorf("TitleKey = %q", c.TitleKey)
	}
	if c.ContentText != "volledige inhoud" {
		t.Errorf("ContentText = %q", c.ContentText)
	}
	if c.ContentRaw != "<p>volledige inhoud</p>" {
		t.Errorf("ContentRaw = %q", c.ContentRaw)
	}
}

func TestNormalizeFallsBackToLinks(t *testing.T) {
	c := Normalize(rss.Entry{Links: []string{"", "https://ex.com/alt"}})
	if c.URL != "https://ex.com/alt" {
		t.Errorf("URL = %q", c.URL)
	}
	if c.TitleKey != "" {
		t.Errorf("empty title should give empty key, got %q", c.TitleKey)
	}
}

func TestNormalizeImagePrecedence(t *testing.T) {
	inline := `<p><img src="https://ex.com/inline.jpg"> tekst</p>`
	enclosures := []rss.Enclosure{
		{URL: "https://ex.com/audio.mp3", Type: "audio/mpeg"},
		{URL: "https://ex.com/enc.jpg", Type: "image/jpeg"},
	}

	tests := []struct {
		name  string
		entry rss.Entry
		want  string
	}{
		{
			name:  "media wins",
			entry: rss.Entry{Summary: inline, MediaURLs: []string{"https://ex.com/media.jpg"}, Enclosures: enclosures},
			want:  "https://ex.com/media.jpg",
		},
		{
			name:  "enclosure before inline",
			entry: rss.Entry{Summary: inline, Enclosures: enclosures},
			want:  "https://ex.com/enc.jpg",
		},
		{
			name:  "inline image last",
			entry: rss.Entry{Summary: inline},
			want:  "https://ex.com/inline.jpg",
		},
		{
			name:  "nothing",
			entry: rss.Entry{Summary: "<p>geen beeld</p>"},
			want:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.entry).ImageURL; got != tt.want {
				t.Errorf("ImageURL = %q, want %q", got, tt.want)
			}
		})
	}
}
