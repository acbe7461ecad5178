// Package registry declares the closed, ordered set of phase
// identifiers, each with the scratch files, job-record field paths, and
// environment keys it requires, plus an estimated duration for ETA
// reporting. The default registry is a singleton constructed once at
// startup.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/talkdub/talkdub/internal/models"
)

// Dependencies declares what a phase needs before it may run.
type Dependencies struct {
	ScratchFiles      []string      // filenames expected under the job's scratch dir
	JobRecordPaths    []string      // dotted field paths expected non-zero on the job record
	EnvKeys           []string      // environment variables expected to be set
	EstimatedDuration time.Duration // for ETA reporting only
}

// Registry is the closed set of phase dependency declarations.
type Registry struct {
	mu    sync.RWMutex
	table map[models.PhaseID]Dependencies
}

var (
	once     sync.Once
	instance *Registry
)

// Default returns the process-wide Registry, built exactly once.
func Default() *Registry {
	once.Do(func() {
		instance = New()
	})
	return instance
}

// New constructs a Registry pre-populated with the declarations for all
// 13 phases. Exported (rather than only a singleton accessor) so tests
// can construct isolated instances.
func New() *Registry {
	r := &Registry{table: make(map[models.PhaseID]Dependencies)}

	r.register(models.PhaseDownload, Dependencies{
		JobRecordPaths:    []string{"source.url"},
		EstimatedDuration: 2 * time.Minute,
	})
	r.register(models.PhaseNormalize, Dependencies{
		ScratchFiles:      []string{"source.mp4"},
		EstimatedDuration: 1 * time.Minute,
	})
	r.register(models.PhaseSeparate, Dependencies{
		ScratchFiles:      []string{"normalized.wav"},
		EnvKeys:           []string{},
		EstimatedDuration: 3 * time.Minute,
	})
	r.register(models.PhaseASR, Dependencies{
		ScratchFiles:      []string{"vocals.wav"},
		EnvKeys:           []string{"SPEECH_MODEL_API_KEY"},
		EstimatedDuration: 4 * time.Minute,
	})
	r.register(models.PhaseVAD, Dependencies{
		ScratchFiles:      []string{"vocals.wav"},
		JobRecordPaths:    []string{"segments"},
		EstimatedDuration: 1 * time.Minute,
	})
	r.register(models.PhaseRefAudio, Dependencies{
		ScratchFiles:      []string{"vocals.wav"},
		JobRecordPaths:    []string{"segments"},
		EstimatedDuration: 1 * time.Minute,
	})
	r.register(models.PhaseHallucination, Dependencies{
		JobRecordPaths:    []string{"segments"},
		EstimatedDuration: 30 * time.Second,
	})
	r.register(models.PhaseTranslation, Dependencies{
		JobRecordPaths:    []string{"segments", "languages.src_lang", "languages.tgt_lang"},
		EnvKeys:           []string{"LLM_API_KEY"},
		EstimatedDuration: 5 * time.Minute,
	})
	r.register(models.PhaseTTS, Dependencies{
		JobRecordPaths:    []string{"segments", "speakers"},
		EstimatedDuration: 6 * time.Minute,
	})
	r.register(models.PhaseTimeline, Dependencies{
		JobRecordPaths:    []string{"segments"},
		EstimatedDuration: 1 * time.Minute,
	})
	r.register(models.PhaseMix, Dependencies{
		ScratchFiles:      []string{"instrumental.wav"},
		JobRecordPaths:    []string{"segments"},
		EstimatedDuration: 2 * time.Minute,
	})
	r.register(models.PhaseFinalize, Dependencies{
		ScratchFiles:      []string{"dub.wav"},
		JobRecordPaths:    []string{"segments"},
		EstimatedDuration: 30 * time.Second,
	})
	r.register(models.PhaseManifest, Dependencies{
		JobRecordPaths:    []string{"outputs.dub_audio_path"},
		EstimatedDuration: 10 * time.Second,
	})

	return r
}

func (r *Registry) register(id models.PhaseID, deps Dependencies) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table[id] = deps
}

// Lookup returns the declared dependencies for a phase id.
func (r *Registry) Lookup(id models.PhaseID) (Dependencies, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	deps, ok := r.table[id]
	return deps, ok
}

// EstimatedRemaining returns the registry's ETA estimate for the remaining
// phases starting at (and including) fromID, for status-endpoint reporting.
func (r *Registry) EstimatedRemaining(fromID models.PhaseID) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total time.Duration
	started := false
	for _, id := range models.PhaseOrder {
		if id == fromID {
			started = true
		}
		if !started {
			continue
		}
		total += r.table[id].EstimatedDuration
	}
	return total
}

// ValidatePreconditions is the gate the phase runner calls before attempting
// execution: it checks declared scratch files exist, declared job-record
// paths are non-zero, and declared environment keys are set. It returns a
// message naming the first missing prerequisite.
func (r *Registry) ValidatePreconditions(id models.PhaseID, job models.Job, scratchDir string) (bool, string) {
	deps, ok := r.Lookup(id)
	if !ok {
		return false, fmt.Sprintf("unknown phase id %q", id)
	}

	for _, filename := range deps.ScratchFiles {
		full := filepath.Join(scratchDir, filename)
		if _, err := os.Stat(full); err != nil {
			return false, fmt.Sprintf("required file %q missing", filename)
		}
	}

	for _, path := range deps.JobRecordPaths {
		if isZeroAtPath(job, path) {
			return false, fmt.Sprintf("required field %q missing", path)
		}
	}

	for _, key := range deps.EnvKeys {
		if os.Getenv(key) == "" {
			return false, fmt.Sprintf("required environment variable %q missing", key)
		}
	}

	return true, ""
}

// isZeroAtPath walks a dotted field path ("languages.src_lang") over job's
// exported fields via reflection and reports whether the resolved value is
// the zero value for its type (empty string, nil slice, zero-length map,
// etc). Struct field names are matched case-insensitively against the
// dotted path's underscore/dot segments translated to Go-style names by the
// json tag, falling back to a direct field-name match.
func isZeroAtPath(job models.Job, path string) bool {
	v := reflect.ValueOf(job)
	segments := strings.Split(path, ".")

	for _, seg := range segments {
		if v.Kind() == reflect.Ptr {
			if v.IsNil() {
				return true
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return true
		}
		field, found := fieldByJSONName(v, seg)
		if !found {
			return true
		}
		v = field
	}

	return v.IsZero()
}

func fieldByJSONName(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		tagName := strings.Split(tag, ",")[0]
		if tagName == name || strings.EqualFold(f.Name, name) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}
