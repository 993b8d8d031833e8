package pipeline

import (
	"time"

	"github.com/vkngwrapper/armory/hal"
	"golang.org/x/exp/slices"
)

// Feedback is what the driver reported about building a pipeline
type Feedback struct {
	Pipeline hal.PipelineCreationFeedback
	Stages   []hal.PipelineCreationFeedback
}

// CacheHit returns true if the driver built the pipeline from its pipeline cache
func (f *Feedback) CacheHit() bool {
	return f != nil && f.Pipeline.Flags&hal.FeedbackApplicationPipelineCacheHit != 0
}

// Duration is how long the driver spent building the pipeline, or zero when it did not say
func (f *Feedback) Duration() time.Duration {
	if f == nil || f.Pipeline.Flags&hal.FeedbackValid == 0 {
		return 0
	}
	return f.Pipeline.Duration
}

func newFeedbackInfo(enabled bool, stages int) *hal.PipelineCreationFeedbackCreateInfo {
	if !enabled {
		return nil
	}
	return &hal.PipelineCreationFeedbackCreateInfo{
		Pipeline: &hal.PipelineCreationFeedback{},
		Stages:   make([]hal.PipelineCreationFeedback, stages),
	}
}

func feedbackFrom(info *hal.PipelineCreationFeedbackCreateInfo) *Feedback {
	if info == nil || info.Pipeline == nil {
		return nil
	}
	return &Feedback{Pipeline: *info.Pipeline, Stages: slices.Clone(info.Stages)}
}

// Pipeline is a driver pipeline owned by a Cache. It lives until the cache is destroyed.
type Pipeline struct {
	handle      hal.Handle
	name        string
	bindPoint   hal.PipelineBindPoint
	flags       hal.PipelineCreateFlags
	layout      *Layout
	base        *Pipeline
	fingerprint uint64
	feedback    *Feedback
}

func (p *Pipeline) Handle() hal.Handle { return p.handle }

func (p *Pipeline) Object() hal.Object { return hal.NewObject(hal.ObjectTypePipeline, p.handle) }

func (p *Pipeline) Name() string { return p.name }

func (p *Pipeline) BindPoint() hal.PipelineBindPoint { return p.bindPoint }

// Flags are the creation flags the pipeline was built with, including PipelineCreateDerivative
// when the cache built it from a parent
func (p *Pipeline) Flags() hal.PipelineCreateFlags { return p.flags }

func (p *Pipeline) Layout() *Layout { return p.layout }

// Base returns the pipeline this one derives from, or nil
func (p *Pipeline) Base() *Pipeline { return p.base }

func (p *Pipeline) Fingerprint() uint64 { return p.fingerprint }

// Feedback returns the driver's creation feedback. It is nil unless the pipeline creation
// feedback extension is enabled.
func (p *Pipeline) Feedback() *Feedback { return p.feedback }
