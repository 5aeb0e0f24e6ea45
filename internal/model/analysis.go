package model

import (
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ShootingArm is the arm the shooter releases the ball with.
type ShootingArm string

const (
	ShootingArmLeft  ShootingArm = "LEFT"
	ShootingArmRight ShootingArm = "RIGHT"
)

// DefaultShootingArm is used when no arm is chosen.
const DefaultShootingArm = ShootingArmRight

// ParseShootingArm accepts LEFT or RIGHT in any case. An empty value yields
// the default arm.
func ParseShootingArm(s string) (ShootingArm, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return DefaultShootingArm, nil
	case string(ShootingArmLeft):
		return ShootingArmLeft, nil
	case string(ShootingArmRight):
		return ShootingArmRight, nil
	default:
		return "", eris.Errorf("model: invalid shooting arm %q (want LEFT or RIGHT)", s)
	}
}

// AnalysisRecord is the canonical, server-authoritative analysis of one shot.
// Clients only read it.
type AnalysisRecord struct {
	ID        string    `json:"id" yaml:"id"`
	CreatedAt time.Time `json:"created_at,omitzero" yaml:"created_at,omitempty"`

	// Media locators. nil means the service did not send one.
	OriginalVideoURL *string `json:"original_video_url,omitempty" yaml:"original_video_url,omitempty"`
	AnalysisVideoURL *string `json:"analysis_video_url,omitempty" yaml:"analysis_video_url,omitempty"`
	SetupFrameURL    *string `json:"setup_frame_url,omitempty" yaml:"setup_frame_url,omitempty"`
	ReleaseFrameURL  *string `json:"release_frame_url,omitempty" yaml:"release_frame_url,omitempty"`
	FollowFrameURL   *string `json:"follow_frame_url,omitempty" yaml:"follow_frame_url,omitempty"`

	// MakeProbability is the upstream shot-success probability as a 0-1
	// fraction. Historical records without one decode to 0.
	MakeProbability float64 `json:"make_probability" yaml:"make_probability"`

	Metrics      Metrics        `json:"metrics" yaml:"metrics"`
	FormFeedback []FeedbackItem `json:"form_feedback,omitempty" yaml:"form_feedback,omitempty"`
}

// FeedbackItem is one form-feedback entry. Upstream order is significant.
type FeedbackItem struct {
	Feature  string  `json:"feature" yaml:"feature"`
	Score    float64 `json:"score" yaml:"score"`
	Short    string  `json:"short,omitempty" yaml:"short,omitempty"`
	Detailed string  `json:"detailed,omitempty" yaml:"detailed,omitempty"`
}

// AnalysisSummary is one entry of the user's analysis history.
type AnalysisSummary struct {
	ID        string    `json:"id" yaml:"id"`
	CreatedAt time.Time `json:"created_at,omitzero" yaml:"created_at,omitempty"`
	VideoURL  *string   `json:"video_url,omitempty" yaml:"video_url,omitempty"`
}

// User is the signed-in account as reported by the service.
type User struct {
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email,omitempty" yaml:"email,omitempty"`
}

// UploadEntry is one row of the local upload journal.
type UploadEntry struct {
	ID          string      `json:"id" yaml:"id"`
	AnalysisID  string      `json:"analysis_id" yaml:"analysis_id"`
	Filename    string      `json:"filename" yaml:"filename"`
	ShootingArm ShootingArm `json:"shooting_arm" yaml:"shooting_arm"`
	SubmittedAt time.Time   `json:"submitted_at" yaml:"submitted_at"`
}

// Handoff carries a freshly created record from the upload flow to the view
// that follows it. It is consumed at most once.
type Handoff struct {
	mu     sync.Mutex
	record *AnalysisRecord
}

// NewHandoff wraps rec for a single consumption. A nil rec yields an empty
// handoff.
func NewHandoff(rec *AnalysisRecord) *Handoff {
	return &Handoff{record: rec}
}

// Take returns the carried record and empties the handoff. Later calls
// return nil. Safe on a nil receiver.
func (h *Handoff) Take() *AnalysisRecord {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	rec := h.record
	h.record = nil
	return rec
}

// Pending reports whether the handoff still holds a record.
func (h *Handoff) Pending() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.record != nil
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC1123,
	time.RFC1123Z,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses the timestamp formats the service has emitted over
// time (ISO-8601 with or without zone, and HTTP dates).
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("model: unrecognized timestamp %q", s)
}
