package format

import (
	"slices"
	"testing"
)

func TestSelectBestEncoding(t *testing.T) {
	tests := []struct {
		name      string
		supported []Encoding
		want      Encoding
	}{
		{"only webm opus", []Encoding{WebMOpus}, WebMOpus},
		{"mp4 aac wins regardless of order", []Encoding{WebMOpus, WebM, MP4AAC}, MP4AAC},
		{"plain mp4 is second priority", []Encoding{Ogg, MP4}, MP4},
		{"aac priority over plain mp4", []Encoding{MP4, MP4AAC}, MP4AAC},
		{"first in list order", []Encoding{WAV, Ogg, MPEG}, Ogg},
		{"ogg opus before ogg", []Encoding{Ogg, OggOpus}, OggOpus},
		{"nothing supported", nil, Fallback},
		{"only unknown identifiers", []Encoding{"audio/flac", "video/mp4"}, Fallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectBestEncoding(Candidates(), NewStaticProbe(tt.supported...))
			if got != tt.want {
				t.Errorf("SelectBestEncoding() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSelectBestEncodingNeverSkipsEarlierSupported(t *testing.T) {
	list := Candidates()
	// Every subset of the candidate list must resolve to its earliest member.
	for mask := 1; mask < 1<<len(list); mask++ {
		var supported []Encoding
		for i, enc := range list {
			if mask&(1<<i) != 0 {
				supported = append(supported, enc)
			}
		}
		want := supported[0]
		if slices.Contains(supported, MP4AAC) {
			want = MP4AAC
		}
		if got := SelectBestEncoding(list, NewStaticProbe(supported...)); got != want {
			t.Fatalf("supported %v: got %q, want %q", supported, got, want)
		}
	}
}

func TestSelectBestEncodingNilProbe(t *testing.T) {
	if got := SelectBestEncoding(Candidates(), nil); got != Fallback {
		t.Errorf("nil probe: got %q, want %q", got, Fallback)
	}
}

func TestSelectBestEncodingEmptyCandidates(t *testing.T) {
	if got := SelectBestEncoding(nil, NewStaticProbe(WebM)); got != Fallback {
		t.Errorf("empty candidates: got %q, want %q", got, Fallback)
	}
	if got := SelectBestEncoding(nil, NewStaticProbe(MP4)); got != MP4 {
		t.Errorf("empty candidates with priority support: got %q, want %q", got, MP4)
	}
}

func TestSelectBestEncodingProbeOrder(t *testing.T) {
	var asked []Encoding
	probe := ProbeFunc(func(enc Encoding) bool {
		asked = append(asked, enc)
		return enc == OggOpus
	})

	if got := SelectBestEncoding(Candidates(), probe); got != OggOpus {
		t.Fatalf("got %q, want %q", got, OggOpus)
	}
	want := []Encoding{MP4AAC, MP4, WebMOpus, WebM, OggOpus}
	if !slices.Equal(asked, want) {
		t.Errorf("probe order = %v, want %v", asked, want)
	}
}

func TestExtensionForKnown(t *testing.T) {
	tests := []struct {
		enc  Encoding
		want string
	}{
		{"audio/webm", "webm"},
		{"audio/webm;codecs=opus", "webm"},
		{"audio/webm;codecs=vorbis", "webm"},
		{`audio/webm; codecs="vorbis"`, "webm"},
		{"audio/ogg", "ogg"},
		{"audio/ogg;codecs=opus", "ogg"},
		{"audio/ogg;codecs=vorbis", "ogg"},
		{`audio/ogg; codecs="vorbis"`, "ogg"},
		{"audio/mp4", "m4a"},
		{"audio/mp4;codecs=mp4a.40.2", "m4a"},
		{`audio/mp4; codecs="mp4a.40.2"`, "m4a"},
		{"audio/mp4;codecs=opus", "m4a"},
		{"audio/mpeg", "mp3"},
		{"audio/mpeg;codecs=mp3", "mp3"},
		{"audio/wav", "wav"},
		{"audio/wav;codecs=1", "wav"},
		{"audio/aac", "aac"},
		{"audio/aac;codecs=mp4a.40.2", "aac"},
		{"AUDIO/MP4;codecs=mp4a.40.2", "m4a"},
		{" audio/ogg ;codecs=opus", "ogg"},
	}

	for _, tt := range tests {
		t.Run(string(tt.enc), func(t *testing.T) {
			if got := ExtensionFor(tt.enc); got != tt.want {
				t.Errorf("ExtensionFor(%q) = %q, want %q", tt.enc, got, tt.want)
			}
		})
	}
}

func TestExtensionForUnknown(t *testing.T) {
	for _, enc := range []Encoding{"", ";", "audio", "audio/flac", "video/webm", "audio/x-matroska;codecs=pcm", ";codecs=opus", "\x00\xff"} {
		if got := ExtensionFor(enc); got != DefaultExtension {
			t.Errorf("ExtensionFor(%q) = %q, want %q", enc, got, DefaultExtension)
		}
	}
}

func TestExtensionForIdempotent(t *testing.T) {
	for _, enc := range append(Candidates(), "audio/unknown", "") {
		first := ExtensionFor(enc)
		if second := ExtensionFor(enc); first != second {
			t.Errorf("ExtensionFor(%q) changed between calls: %q then %q", enc, first, second)
		}
	}
}

func TestNegotiateScenarios(t *testing.T) {
	tests := []struct {
		name      string
		supported []Encoding
		wantEnc   Encoding
		wantExt   string
	}{
		{"webm opus only", []Encoding{WebMOpus}, WebMOpus, "webm"},
		{"mp4 aac", []Encoding{WebMOpus, MP4AAC}, MP4AAC, "m4a"},
		{"none", nil, Fallback, "webm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Negotiate(NewStaticProbe(tt.supported...))
			if got.Encoding != tt.wantEnc || got.Extension != tt.wantExt {
				t.Errorf("Negotiate() = %+v, want {%s %s}", got, tt.wantEnc, tt.wantExt)
			}
		})
	}
}

func TestCandidatesIsACopy(t *testing.T) {
	list := Candidates()
	list[0] = "audio/flac"
	if Candidates()[0] != WebMOpus {
		t.Error("modifying the returned slice changed the default candidates")
	}
}

func TestEncodingContentType(t *testing.T) {
	tests := map[Encoding]string{
		WebMOpus:         "audio/webm",
		MP4AAC:           "audio/mp4",
		WAV:              "audio/wav",
		"":               "audio/webm",
		";codecs=opus":   "audio/webm",
		"Audio/Ogg; x=1": "audio/ogg",
	}
	for enc, want := range tests {
		if got := enc.ContentType(); got != want {
			t.Errorf("%q.ContentType() = %q, want %q", enc, got, want)
		}
	}
}
