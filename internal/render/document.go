package render

import (
	"time"

	"github.com/sells-group/shotsense-cli/internal/model"
	"github.com/sells-group/shotsense-cli/internal/phase"
	"github.com/sells-group/shotsense-cli/internal/view"
)

// MetricDoc is one displayed metric.
type MetricDoc struct {
	Label  string `json:"label" yaml:"label"`
	Source string `json:"source" yaml:"source"`
	Value  any    `json:"value" yaml:"value"`
	Text   string `json:"text" yaml:"text"`
}

// PhaseDoc is one phase section.
type PhaseDoc struct {
	Phase   phase.Phase `json:"phase" yaml:"phase"`
	Metrics []MetricDoc `json:"metrics" yaml:"metrics"`
}

// MediaDoc lists the locators the record carries.
type MediaDoc struct {
	OriginalVideo string `json:"original_video,omitempty" yaml:"original_video,omitempty"`
	AnalysisVideo string `json:"analysis_video,omitempty" yaml:"analysis_video,omitempty"`
	SetupFrame    string `json:"setup_frame,omitempty" yaml:"setup_frame,omitempty"`
	ReleaseFrame  string `json:"release_frame,omitempty" yaml:"release_frame,omitempty"`
	FollowFrame   string `json:"follow_frame,omitempty" yaml:"follow_frame,omitempty"`
}

// AnalysisDoc is the presentation model of one analysis view state.
type AnalysisDoc struct {
	Status          view.Status          `json:"status" yaml:"status"`
	ID              string               `json:"id" yaml:"id"`
	Message         string               `json:"message,omitempty" yaml:"message,omitempty"`
	Retryable       bool                 `json:"retryable,omitempty" yaml:"retryable,omitempty"`
	CreatedAt       *time.Time           `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	MakeProbability *float64             `json:"make_probability,omitempty" yaml:"make_probability,omitempty"`
	MakePercent     string               `json:"make_percent,omitempty" yaml:"make_percent,omitempty"`
	Score           *float64             `json:"score,omitempty" yaml:"score,omitempty"`
	Media           *MediaDoc            `json:"media,omitempty" yaml:"media,omitempty"`
	Phases          []PhaseDoc           `json:"phases,omitempty" yaml:"phases,omitempty"`
	Feedback        []model.FeedbackItem `json:"feedback,omitempty" yaml:"feedback,omitempty"`
}

// NewAnalysisDoc builds the presentation model for s. Failure states carry
// only their status and message.
func NewAnalysisDoc(s view.AnalysisState) AnalysisDoc {
	doc := AnalysisDoc{Status: s.Status, ID: s.ID, Message: s.Message, Retryable: s.Retryable}
	if s.Status != view.StatusReady || s.Record == nil {
		return doc
	}

	rec := s.Record
	if !rec.CreatedAt.IsZero() {
		t := rec.CreatedAt
		doc.CreatedAt = &t
	}
	p := ClampProbability(rec.MakeProbability)
	score := Score10(rec.MakeProbability)
	doc.MakeProbability = &p
	doc.MakePercent = Percent(rec.MakeProbability)
	doc.Score = &score

	media := MediaDoc{
		OriginalVideo: deref(rec.OriginalVideoURL),
		AnalysisVideo: deref(rec.AnalysisVideoURL),
		SetupFrame:    deref(rec.SetupFrameURL),
		ReleaseFrame:  deref(rec.ReleaseFrameURL),
		FollowFrame:   deref(rec.FollowFrameURL),
	}
	if media != (MediaDoc{}) {
		doc.Media = &media
	}

	doc.Phases = phaseDocs(s.Phases)
	doc.Feedback = rec.FormFeedback
	return doc
}

func phaseDocs(v phase.View) []PhaseDoc {
	out := make([]PhaseDoc, 0, len(phase.All))
	for _, p := range phase.All {
		entries := v.Group(p)
		metrics := make([]MetricDoc, 0, len(entries))
		for _, e := range entries {
			metrics = append(metrics, MetricDoc{
				Label:  Label(e.Key),
				Source: e.Source,
				Value:  e.Value,
				Text:   FormatValue(e.Value),
			})
		}
		out = append(out, PhaseDoc{Phase: p, Metrics: metrics})
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
