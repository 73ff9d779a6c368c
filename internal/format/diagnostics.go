package format

// Format is one of the file formats shown in the support diagnostics.
type Format struct {
	Name      string   // Short name, also the file extension
	Recording Encoding // Identifier checked for recording
	Playback  Encoding // Identifier checked for playback
}

// formats is the fixed list of diagnostic formats, in display order.
var formats = [...]Format{
	{Name: "wav", Recording: WAV, Playback: WAV},
	{Name: "mp3", Recording: MPEG, Playback: MPEG},
	{Name: "m4a", Recording: MP4, Playback: `audio/mp4; codecs="mp4a.40.2"`},
	{Name: "ogg", Recording: Ogg, Playback: `audio/ogg; codecs="vorbis"`},
	{Name: "webm", Recording: WebM, Playback: `audio/webm; codecs="vorbis"`},
	{Name: "aac", Recording: AAC, Playback: AAC},
}

// Formats returns the diagnostic formats in display order.
func Formats() []Format {
	out := make([]Format, len(formats))
	copy(out, formats[:])
	return out
}

// RecordingSupport is a yes/no recording answer for one format.
type RecordingSupport struct {
	Format    string `json:"format"`
	Supported bool   `json:"supported"`
}

// PlaybackSupport is a playback answer for one format.
type PlaybackSupport struct {
	Format  string      `json:"format"`
	Answer  Playability `json:"answer"`
	Verdict string      `json:"verdict"`
}

// Report bundles the diagnostics shown next to the recorder.
type Report struct {
	RecorderAvailable bool               `json:"recorder_available"`
	Selected          Selection          `json:"selected"`
	Recording         []RecordingSupport `json:"recording"`
	Playback          []PlaybackSupport  `json:"playback,omitempty"`
}

// RecordingSupportFor checks every diagnostic format against probe.
func RecordingSupportFor(probe Probe) []RecordingSupport {
	out := make([]RecordingSupport, 0, len(formats))
	for _, f := range formats {
		out = append(out, RecordingSupport{
			Format:    f.Name,
			Supported: probe != nil && probe.Supports(f.Recording),
		})
	}
	return out
}

// PlaybackSupportFor checks every diagnostic format against probe.
func PlaybackSupportFor(probe PlaybackProbe) []PlaybackSupport {
	out := make([]PlaybackSupport, 0, len(formats))
	for _, f := range formats {
		var answer Playability
		if probe != nil {
			answer = probe.CanPlay(f.Playback)
		}
		out = append(out, PlaybackSupport{
			Format:  f.Name,
			Answer:  answer,
			Verdict: Verdict(answer),
		})
	}
	return out
}

// Verdict returns the human-readable label for a playback answer.
func Verdict(p Playability) string {
	switch p {
	case PlayNo:
		return "no support"
	case PlayProbably:
		return "will play"
	case PlayMaybe:
		return "not enough info"
	default:
		return "got no info"
	}
}

// Diagnose builds a full report. A nil recorder probe means the environment has
// no recorder at all; the report still selects the fallback encoding.
func Diagnose(recorder Probe, player PlaybackProbe) Report {
	r := Report{
		RecorderAvailable: recorder != nil,
		Selected:          Negotiate(recorder),
		Recording:         RecordingSupportFor(recorder),
	}
	if player != nil {
		r.Playback = PlaybackSupportFor(player)
	}
	return r
}
