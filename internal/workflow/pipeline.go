package workflow

import (
	"reel/internal/config"
	"reel/internal/queue"
	"reel/internal/stage"
)

// pipelineStage binds one stage definition to its executor and enablement.
type pipelineStage struct {
	name       string
	processing queue.Status
	entry      []queue.Status
	requires   []string
	executor   stage.Executor
	enabled    bool
	optional   bool
}

// runsFor reports whether the stage executes for this recording: the stage
// must be enabled by configuration, and an optional stage can additionally
// be switched off by the recording's intake preferences.
func (st pipelineStage) runsFor(rec *queue.Recording) bool {
	if !st.enabled {
		return false
	}
	if st.optional && rec.SkipsStage(st.name) {
		return false
	}
	return true
}

// Executors carries the five stage implementations the pipeline runs.
// Tests substitute stubs for individual entries.
type Executors struct {
	Acquire    stage.Executor
	Transcode  stage.Executor
	Transcribe stage.Executor
	Translate  stage.Executor
	Publish    stage.Executor
}

// Pipeline is the ordered stage table for one configuration.
type Pipeline struct {
	stages []pipelineStage
}

// NewPipeline builds the stage table. Acquire, transcode, and publish are
// always enabled; transcribe and translate follow the stages section of the
// configuration.
func NewPipeline(cfg *config.Config, execs Executors) *Pipeline {
	return &Pipeline{stages: []pipelineStage{
		{
			name:       queue.StageAcquire,
			processing: queue.StatusAcquiring,
			entry:      []queue.Status{queue.StatusInitialized},
			executor:   execs.Acquire,
			enabled:    true,
		},
		{
			name:       queue.StageTranscode,
			processing: queue.StatusTransforming,
			entry:      []queue.Status{queue.StatusAcquired},
			requires:   []string{queue.ArtifactRaw},
			executor:   execs.Transcode,
			enabled:    true,
		},
		{
			name:       queue.StageTranscribe,
			processing: queue.StatusEnriching,
			entry:      []queue.Status{queue.StatusTransformed},
			requires:   []string{queue.ArtifactMedia},
			executor:   execs.Transcribe,
			enabled:    cfg.Stages.Transcribe,
			optional:   true,
		},
		{
			name:       queue.StageTranslate,
			processing: queue.StatusEnriching,
			entry:      []queue.Status{queue.StatusTransformed},
			requires:   []string{queue.ArtifactTranscript},
			executor:   execs.Translate,
			enabled:    cfg.Stages.Translate,
			optional:   true,
		},
		{
			name:       queue.StagePublish,
			processing: queue.StatusPublishing,
			entry:      []queue.Status{queue.StatusEnriched, queue.StatusTransformed},
			requires:   []string{queue.ArtifactMedia},
			executor:   execs.Publish,
			enabled:    true,
		},
	}}
}

// Stages returns the table in execution order.
func (p *Pipeline) Stages() []pipelineStage {
	return p.stages
}

// stageByName finds a table entry.
func (p *Pipeline) stageByName(name string) (pipelineStage, bool) {
	for _, st := range p.stages {
		if st.name == name {
			return st, true
		}
	}
	return pipelineStage{}, false
}

// doneStatus computes the at-rest status after stage completes on rec. The
// enrichment pair shares the enriched terminal: the first member to finish
// rests at transformed while a later member still has work, and the last
// member advances the recording to enriched.
func (p *Pipeline) doneStatus(name string, rec *queue.Recording) queue.Status {
	switch name {
	case queue.StageAcquire:
		return queue.StatusAcquired
	case queue.StageTranscode:
		return queue.StatusTransformed
	case queue.StageTranscribe:
		if translate, ok := p.stageByName(queue.StageTranslate); ok && translate.runsFor(rec) {
			if rec.StageStatusFor(queue.StageTranslate) != queue.StageCompleted {
				return queue.StatusTransformed
			}
		}
		return queue.StatusEnriched
	case queue.StageTranslate:
		return queue.StatusEnriched
	case queue.StagePublish:
		return queue.StatusPublished
	}
	return rec.Status
}

// EligibleStatuses lists the at-rest statuses the manager polls for.
func EligibleStatuses() []queue.Status {
	return []queue.Status{
		queue.StatusInitialized,
		queue.StatusAcquired,
		queue.StatusTransformed,
		queue.StatusEnriched,
	}
}

// rollbacksFor maps in-flight statuses to the at-rest status interrupted
// recordings return to. With the enrichment pair disabled the publish entry
// shifts back to transformed.
func rollbacksFor(cfg *config.Config) []queue.StatusTransition {
	transitions := queue.DefaultRollbacks()
	if !cfg.Stages.Transcribe && !cfg.Stages.Translate {
		for i, tr := range transitions {
			if tr.From == queue.StatusPublishing {
				transitions[i].To = queue.StatusTransformed
			}
		}
	}
	return transitions
}
