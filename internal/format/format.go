// Package format negotiates the capture encoding for a recording and derives the
// file extension used to name it in storage.
package format

import (
	"slices"
	"strings"
)

// Encoding is a MIME-like identifier for a container and codec pair,
// for example "audio/webm;codecs=opus".
type Encoding string

// Supported capture encodings.
const (
	MP4AAC   Encoding = "audio/mp4;codecs=mp4a.40.2"
	MP4      Encoding = "audio/mp4"
	WebMOpus Encoding = "audio/webm;codecs=opus"
	WebM     Encoding = "audio/webm"
	OggOpus  Encoding = "audio/ogg;codecs=opus"
	Ogg      Encoding = "audio/ogg"
	MPEG     Encoding = "audio/mpeg"
	WAV      Encoding = "audio/wav"
	AAC      Encoding = "audio/aac"
)

// Fallback is the encoding assumed when no candidate is reported as supported.
// It is best effort: the environment may not support it either.
const Fallback = WebM

// DefaultExtension is used for identifiers missing from the extension map.
const DefaultExtension = "webm"

// paramDelimiter separates the container from its codec parameters.
const paramDelimiter = ";"

// priority encodings are checked before the candidate list. AAC in MP4 is the
// only format Safari records, and it plays back everywhere.
var priority = [...]Encoding{MP4AAC, MP4}

// candidates is the preference order used after the priority encodings.
var candidates = [...]Encoding{
	WebMOpus,
	WebM,
	OggOpus,
	Ogg,
	MP4AAC,
	MPEG,
	WAV,
}

// extensions maps full and base identifiers to filename suffixes.
var extensions = map[Encoding]string{
	WebM:     "webm",
	WebMOpus: "webm",
	Ogg:      "ogg",
	OggOpus:  "ogg",
	MP4:      "m4a",
	MP4AAC:   "m4a",
	MPEG:     "mp3",
	WAV:      "wav",
	AAC:      "aac",
}

// Candidates returns the default preference order, most preferred first.
func Candidates() []Encoding {
	return slices.Clone(candidates[:])
}

// Base returns the container part of the identifier with codec parameters removed.
func (e Encoding) Base() Encoding {
	base, _, _ := strings.Cut(string(e), paramDelimiter)
	return Encoding(strings.ToLower(strings.TrimSpace(base)))
}

// ContentType returns the value to use as an HTTP or object Content-Type.
func (e Encoding) ContentType() string {
	if base := e.Base(); base != "" {
		return string(base)
	}
	return string(Fallback)
}

// String implements fmt.Stringer.
func (e Encoding) String() string {
	return string(e)
}

// Selection is the outcome of a negotiation.
type Selection struct {
	Encoding  Encoding `json:"mime_type"`
	Extension string   `json:"extension"`
}

// SelectBestEncoding returns the first supported encoding. The priority encodings
// win over list order, then candidates are tried in order, then Fallback is
// returned. A nil probe supports nothing.
func SelectBestEncoding(candidates []Encoding, probe Probe) Encoding {
	if probe == nil {
		return Fallback
	}
	for _, enc := range priority {
		if probe.Supports(enc) {
			return enc
		}
	}
	for _, enc := range candidates {
		if probe.Supports(enc) {
			return enc
		}
	}
	return Fallback
}

// ExtensionFor returns the filename suffix for an encoding. Codec parameters are
// ignored when the full identifier is unknown; anything else unknown maps to
// DefaultExtension.
func ExtensionFor(enc Encoding) string {
	if ext, ok := extensions[enc]; ok {
		return ext
	}
	if ext, ok := extensions[enc.Base()]; ok {
		return ext
	}
	return DefaultExtension
}

// Negotiate selects an encoding from the default candidates and derives its extension.
func Negotiate(probe Probe) Selection {
	enc := SelectBestEncoding(Candidates(), probe)
	return Selection{
		Encoding:  enc,
		Extension: ExtensionFor(enc),
	}
}
