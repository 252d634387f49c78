package markup

import "testing"

func TestStrip(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Hello there.", "Hello there."},
		{"<b>Photo</b>synthesis", "Photosynthesis"},
		{`Look at <span data-tooltip="green pigment">chlorophyll</span>.`, "Look at chlorophyll."},
		{"Unclosed <b tag", "Unclosed "},
		{"a < b", "a "},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Strip(tc.in); got != tc.want {
			t.Fatalf("Strip(%q): want=%q got=%q", tc.in, tc.want, got)
		}
	}
}

func TestIsImageReference(t *testing.T) {
	cases := map[string]bool{
		"data:image/png;base64,AAAA":                     true,
		"https://storage.googleapis.com/b/lessons/x.png": true,
		"<h1>Leaves</h1>":                                false,
		"http://example.com/<script>":                    false,
		"":                                               false,
	}
	for in, want := range cases {
		if got := IsImageReference(in); got != want {
			t.Fatalf("IsImageReference(%q): want=%v got=%v", in, want, got)
		}
	}
}
