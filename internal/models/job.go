// Package models defines the data shapes that flow through the TalkDub
// pipeline: the Job Store's JSON record, the gorm-backed ephemeral stores,
// and the wire shapes shared between the orchestrator and the phases.
package models

import "time"

// JobStatus is the lifecycle status of a job record.
type JobStatus string

const (
	StatusQueued     JobStatus = "QUEUED"
	StatusProcessing JobStatus = "PROCESSING"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusFailed     JobStatus = "FAILED"
	StatusPaused     JobStatus = "PAUSED"
	StatusExpired    JobStatus = "EXPIRED"
)

// SchemaVersion is the current Job record format version. Bump this and add
// a migration path in jobstore if the record shape changes incompatibly.
const SchemaVersion = 1

// PhaseID identifies one step of the fixed pipeline sequence.
type PhaseID string

const (
	PhaseDownload      PhaseID = "download"
	PhaseNormalize     PhaseID = "normalize"
	PhaseSeparate      PhaseID = "separate"
	PhaseASR           PhaseID = "asr"
	PhaseVAD           PhaseID = "vad"
	PhaseRefAudio      PhaseID = "ref_audio"
	PhaseHallucination PhaseID = "hallucination"
	PhaseTranslation   PhaseID = "translation"
	PhaseTTS           PhaseID = "tts"
	PhaseTimeline      PhaseID = "timeline"
	PhaseMix           PhaseID = "mix"
	PhaseFinalize      PhaseID = "finalize"
	PhaseManifest      PhaseID = "manifest"
)

// PhaseOrder is the fixed, ordered sequence of pipeline phases.
var PhaseOrder = []PhaseID{
	PhaseDownload, PhaseNormalize, PhaseSeparate, PhaseASR, PhaseVAD,
	PhaseRefAudio, PhaseHallucination, PhaseTranslation, PhaseTTS,
	PhaseTimeline, PhaseMix, PhaseFinalize, PhaseManifest,
}

// Source identifies the submitted video.
type Source struct {
	Platform string `json:"platform"`
	VideoID  string `json:"video_id"`
	URL      string `json:"url"`
}

// Languages is the fixed source/target language pair for a job.
type Languages struct {
	Src string `json:"src_lang"`
	Tgt string `json:"tgt_lang"`
}

// Media holds facts about the source media discovered during the download
// and normalize phases.
type Media struct {
	DurationSec float64 `json:"duration_sec"`
}

// PipelineParams are the tunables fixed at job creation.
type PipelineParams struct {
	MaxTempoStretch     float64 `json:"max_tempo_stretch"`
	MaxOverlapSec       float64 `json:"max_overlap_sec"`
	MaxOverlapRatio     float64 `json:"max_overlap_ratio"`
	DuckLevelDB         float64 `json:"duck_level_db"`
	HallucinationPolicy string  `json:"hallucination_policy"`
	TimelineReference   string  `json:"timeline_reference"`
}

// DefaultPipelineParams returns the documented defaults.
func DefaultPipelineParams() PipelineParams {
	return PipelineParams{
		MaxTempoStretch:     1.25,
		MaxOverlapSec:       0.5,
		MaxOverlapRatio:     0.3,
		DuckLevelDB:         -12,
		HallucinationPolicy: "silence",
		TimelineReference:   "source",
	}
}

// Outputs holds the finalized artifact paths, populated by the finalize and
// manifest phases.
type Outputs struct {
	DubAudioPath string `json:"dub_audio_path,omitempty"`
	ManifestPath string `json:"manifest_path,omitempty"`
	SegmentsPath string `json:"segments_path,omitempty"`
}

// Progress tracks monotonic completion across segments.
type Progress struct {
	CompletedSegments int     `json:"completed_segments"`
	TotalSegments     int     `json:"total_segments"`
	Percent           float64 `json:"percent"`
}

// Job is the single persisted document for one submission. It is the only
// durable representation of a job: the job store reads and writes this
// struct whole, atomically.
type Job struct {
	JobID          string         `json:"job_id"`
	SchemaVersion  int            `json:"schema_version"`
	CreatedAt      time.Time      `json:"created_at"`
	Status         JobStatus      `json:"status"`
	CurrentPhase   *PhaseID       `json:"current_phase"`
	Source         Source         `json:"source"`
	Languages      Languages      `json:"languages"`
	Media          Media          `json:"media"`
	PipelineParams PipelineParams `json:"pipeline_params"`
	Speakers       []Speaker      `json:"speakers"`
	Segments       []Segment      `json:"segments"`
	Outputs        *Outputs       `json:"outputs"`
	Progress       Progress       `json:"progress"`
	Error          *string        `json:"error"`
	UserEmail      string         `json:"user_email"`
	WebhookURL     string         `json:"webhook_url,omitempty"`
	DownloadCount  int            `json:"download_count"`
	ExpiresAt      *time.Time     `json:"expires_at"`
}

// Clone returns a deep-enough copy for safe mutation by a phase runner
// attempt without aliasing slices with the caller's copy.
func (j Job) Clone() Job {
	clone := j
	clone.Speakers = append([]Speaker(nil), j.Speakers...)
	clone.Segments = append([]Segment(nil), j.Segments...)
	if j.CurrentPhase != nil {
		p := *j.CurrentPhase
		clone.CurrentPhase = &p
	}
	if j.Error != nil {
		e := *j.Error
		clone.Error = &e
	}
	if j.ExpiresAt != nil {
		t := *j.ExpiresAt
		clone.ExpiresAt = &t
	}
	if j.Outputs != nil {
		o := *j.Outputs
		clone.Outputs = &o
	}
	return clone
}

// ScratchDir returns the per-job scratch path under the given data root.
func (j Job) ScratchDir(dataRoot string) string {
	return dataRoot + "/temp/" + j.JobID
}

// RefAudioDir returns the per-job reference-audio directory.
func (j Job) RefAudioDir(dataRoot string) string {
	return dataRoot + "/ref_audio/" + j.JobID
}

// OutputDir returns the per-job output directory.
func (j Job) OutputDir(dataRoot string) string {
	return dataRoot + "/output/" + j.JobID
}
