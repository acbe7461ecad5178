package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talkdub/talkdub/internal/models"
)

// fullyProvisionedJob is a job record that satisfies every phase's declared
// job-record field paths, used as the baseline before each test zeroes out
// exactly one declared dependency.
func fullyProvisionedJob() models.Job {
	return models.Job{
		JobID:     "job-1",
		Source:    models.Source{Platform: "youtube", VideoID: "abc", URL: "https://youtu.be/abc"},
		Languages: models.Languages{Src: "ja", Tgt: "en"},
		Segments:  []models.Segment{{SegID: "0001", Start: 0, End: 1}},
		Speakers:  []models.Speaker{{SpeakerID: "spk0"}},
		Outputs:   &models.Outputs{DubAudioPath: "dub.wav"},
	}
}

func provisionScratch(t *testing.T, files ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("x"), 0644))
	}
	return dir
}

func TestValidatePreconditions_AllPhasesPassWhenFullyProvisioned(t *testing.T) {
	r := New()
	job := fullyProvisionedJob()

	allScratch := []string{
		"source.mp4", "normalized.wav", "vocals.wav", "instrumental.wav", "dub.wav",
	}
	dir := provisionScratch(t, allScratch...)

	for _, id := range models.PhaseOrder {
		deps, ok := r.Lookup(id)
		require.True(t, ok, "phase %s must be registered", id)
		for _, key := range deps.EnvKeys {
			t.Setenv(key, "set")
		}
		ok2, msg := r.ValidatePreconditions(id, job, dir)
		assert.True(t, ok2, "phase %s should pass with full provisioning, got: %s", id, msg)
	}
}

func TestValidatePreconditions_MissingScratchFileFailsFast(t *testing.T) {
	r := New()
	job := fullyProvisionedJob()
	dir := t.TempDir() // no scratch files at all

	ok, msg := r.ValidatePreconditions(models.PhaseNormalize, job, dir)
	assert.False(t, ok)
	assert.Contains(t, msg, "source.mp4")
}

func TestValidatePreconditions_MissingJobRecordFieldFailsFast(t *testing.T) {
	r := New()
	job := fullyProvisionedJob()
	job.Segments = nil // PhaseVAD requires "segments"
	dir := provisionScratch(t, "vocals.wav")

	ok, msg := r.ValidatePreconditions(models.PhaseVAD, job, dir)
	assert.False(t, ok)
	assert.Contains(t, msg, "segments")
}

func TestValidatePreconditions_MissingEnvKeyFailsFast(t *testing.T) {
	r := New()
	job := fullyProvisionedJob()
	dir := provisionScratch(t, "vocals.wav")

	os.Unsetenv("SPEECH_MODEL_API_KEY")
	ok, msg := r.ValidatePreconditions(models.PhaseASR, job, dir)
	assert.False(t, ok)
	assert.Contains(t, msg, "SPEECH_MODEL_API_KEY")
}

func TestValidatePreconditions_UnknownPhaseIDFails(t *testing.T) {
	r := New()
	ok, msg := r.ValidatePreconditions(models.PhaseID("bogus"), fullyProvisionedJob(), t.TempDir())
	assert.False(t, ok)
	assert.Contains(t, msg, "bogus")
}

func TestEstimatedRemaining_SumsFromGivenPhaseToEnd(t *testing.T) {
	r := New()
	full := r.EstimatedRemaining(models.PhaseDownload)
	fromMix := r.EstimatedRemaining(models.PhaseMix)
	assert.Greater(t, full, fromMix, "remaining estimate from an earlier phase must exceed a later one")
}

func TestDefault_IsASingleton(t *testing.T) {
	a := Default()
	b := Default()
	assert.Same(t, a, b)
}
