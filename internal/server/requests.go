package server

import "github.com/oszuidwest/zwfm-voicebox/internal/format"

// Request types for WebSocket commands with validation tags.
// The same types are accepted by the REST endpoints.

// MaxReportedEncodings bounds the identifiers in one capability report.
const MaxReportedEncodings = 64

// CapabilitiesReportRequest is the request body for capabilities/report and
// POST /api/negotiate. It carries what the client's recorder and player
// answered for each identifier it checked.
type CapabilitiesReportRequest struct {
	// RecorderAvailable is false when the client has no recorder at all.
	RecorderAvailable bool `json:"recorder_available"`
	// Recording lists the identifiers the recorder accepts.
	Recording []string `json:"recording" validate:"max=64,dive,required,max=255,printascii"`
	// Playback maps identifiers to "", "maybe" or "probably".
	Playback map[string]string `json:"playback" validate:"max=64,dive,keys,required,max=255,printascii,endkeys,omitempty,oneof=maybe probably"`
}

// RecorderProbe returns the recorder probe for the report, or nil when the
// client has no recorder.
func (r *CapabilitiesReportRequest) RecorderProbe() format.Probe {
	if !r.RecorderAvailable {
		return nil
	}
	supported := make([]format.Encoding, 0, len(r.Recording))
	for _, id := range r.Recording {
		supported = append(supported, format.Encoding(id))
	}
	return format.NewStaticProbe(supported...)
}

// PlaybackProbe returns the playback answers of the report, or nil when none were sent.
func (r *CapabilitiesReportRequest) PlaybackProbe() format.PlaybackProbe {
	if len(r.Playback) == 0 {
		return nil
	}
	report := make(format.PlaybackReport, len(r.Playback))
	for id, answer := range r.Playback {
		report[format.Encoding(id)] = format.Playability(answer)
	}
	return report
}

// Diagnose builds the support report for the capabilities.
func (r *CapabilitiesReportRequest) Diagnose() format.Report {
	return format.Diagnose(r.RecorderProbe(), r.PlaybackProbe())
}

// RecordingsListRequest is the request body for recordings/list.
type RecordingsListRequest struct {
	// Folder overrides the configured folder.
	Folder string `json:"folder" validate:"omitempty,max=255,folder"`
}
