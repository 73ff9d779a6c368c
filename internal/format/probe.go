package format

// Probe reports whether an encoding is usable in the current environment.
type Probe interface {
	Supports(enc Encoding) bool
}

// ProbeFunc adapts a function to the Probe interface.
type ProbeFunc func(enc Encoding) bool

// Supports implements Probe.
func (f ProbeFunc) Supports(enc Encoding) bool {
	return f(enc)
}

// StaticProbe answers from a fixed set of identifiers, such as the results a
// browser reported for MediaRecorder.isTypeSupported.
type StaticProbe map[Encoding]bool

// NewStaticProbe returns a probe that supports exactly the given encodings.
func NewStaticProbe(supported ...Encoding) StaticProbe {
	p := make(StaticProbe, len(supported))
	for _, enc := range supported {
		p[enc] = true
	}
	return p
}

// Supports implements Probe. Identifiers are matched exactly.
func (p StaticProbe) Supports(enc Encoding) bool {
	return p[enc]
}

// Playability is the three-valued answer of a playback check.
type Playability string

// Playback answers as reported by HTMLMediaElement.canPlayType.
const (
	PlayNo       Playability = ""
	PlayMaybe    Playability = "maybe"
	PlayProbably Playability = "probably"
)

// IsValid reports whether p is one of the known answers.
func (p Playability) IsValid() bool {
	return p == PlayNo || p == PlayMaybe || p == PlayProbably
}

// PlaybackProbe reports how likely an encoding is to play back.
type PlaybackProbe interface {
	CanPlay(enc Encoding) Playability
}

// PlaybackReport is a fixed set of playback answers keyed by identifier.
type PlaybackReport map[Encoding]Playability

// CanPlay implements PlaybackProbe. Unknown identifiers are unsupported.
func (r PlaybackReport) CanPlay(enc Encoding) Playability {
	return r[enc]
}

// Supports implements Probe; "maybe" and "probably" count as supported.
func (r PlaybackReport) Supports(enc Encoding) bool {
	return rank(r.CanPlay(enc)) > 0
}

// PlaybackAsProbe adapts a PlaybackProbe to Probe. An encoding is supported when
// the answer is at least minimum.
func PlaybackAsProbe(p PlaybackProbe, minimum Playability) Probe {
	return ProbeFunc(func(enc Encoding) bool {
		if p == nil {
			return false
		}
		answer := rank(p.CanPlay(enc))
		return answer > 0 && answer >= rank(minimum)
	})
}

func rank(p Playability) int {
	switch p {
	case PlayProbably:
		return 2
	case PlayMaybe:
		return 1
	default:
		return 0
	}
}
