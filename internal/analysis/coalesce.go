package analysis

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/shotsense-cli/internal/model"
	"github.com/sells-group/shotsense-cli/pkg/shotsense"
)

// Field aliases, in precedence order. Service revisions disagree on naming,
// so the first alias that is present and non-null wins.
var (
	idKeys              = []string{"id", "analysis_id", "analysisId"}
	createdKeys         = []string{"created_at", "createdAt"}
	originalVideoKeys   = []string{"originalVideoUrl", "video_url", "original_video_url"}
	analysisVideoKeys   = []string{"analysisVideoUrl", "analysis_video_url"}
	setupFrameKeys      = []string{"setupFrameUrl", "setup_frame_url"}
	releaseFrameKeys    = []string{"releaseFrameUrl", "release_frame_url"}
	followFrameKeys     = []string{"followFrameUrl", "follow_frame_url", "followThroughFrameUrl"}
	makeProbabilityKeys = []string{"make_probability", "makeProbability"}
	metricsKeys         = []string{"metrics"}
	feedbackKeys        = []string{"form_feedback", "formFeedback"}
	summaryVideoKeys    = []string{"video_url", "originalVideoUrl", "original_video_url"}
)

// Coalesce maps a raw service payload onto the canonical record. fallbackID
// is used when the payload carries no identifier. Absent fields decode to
// their zero value; only structurally broken payloads are an error.
func Coalesce(p shotsense.Payload, fallbackID string) (*model.AnalysisRecord, error) {
	if p == nil {
		return nil, eris.New("analysis: empty payload")
	}

	rec := &model.AnalysisRecord{Metrics: model.Metrics{}}

	id, err := coalesceID(p)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = fallbackID
	}
	rec.ID = id

	rec.CreatedAt = coalesceTime(p, createdKeys, id)

	urls := []struct {
		keys []string
		dst  **string
	}{
		{originalVideoKeys, &rec.OriginalVideoURL},
		{analysisVideoKeys, &rec.AnalysisVideoURL},
		{setupFrameKeys, &rec.SetupFrameURL},
		{releaseFrameKeys, &rec.ReleaseFrameURL},
		{followFrameKeys, &rec.FollowFrameURL},
	}
	for _, u := range urls {
		s, err := coalesceString(p, u.keys)
		if err != nil {
			return nil, err
		}
		*u.dst = s
	}

	if raw, key, ok := first(p, makeProbabilityKeys); ok {
		f, ok := decodeFloat(raw)
		if !ok {
			zap.L().Warn("analysis: non-numeric make probability",
				zap.String("analysis_id", id),
				zap.String("key", key),
				zap.ByteString("value", raw),
			)
		}
		rec.MakeProbability = f
	}

	if raw, _, ok := first(p, metricsKeys); ok {
		if err := json.Unmarshal(raw, &rec.Metrics); err != nil {
			return nil, eris.Wrapf(err, "analysis: decode metrics for %s", id)
		}
	}

	if raw, _, ok := first(p, feedbackKeys); ok {
		items, err := decodeFeedback(raw)
		if err != nil {
			return nil, eris.Wrapf(err, "analysis: decode form feedback for %s", id)
		}
		rec.FormFeedback = items
	}

	return rec, nil
}

// CoalesceSummary maps one history entry onto a summary.
func CoalesceSummary(p shotsense.Payload) (model.AnalysisSummary, error) {
	id, err := coalesceID(p)
	if err != nil {
		return model.AnalysisSummary{}, err
	}
	if id == "" {
		return model.AnalysisSummary{}, eris.New("analysis: history entry without id")
	}

	video, err := coalesceString(p, summaryVideoKeys)
	if err != nil {
		return model.AnalysisSummary{}, err
	}

	return model.AnalysisSummary{
		ID:        id,
		CreatedAt: coalesceTime(p, createdKeys, id),
		VideoURL:  video,
	}, nil
}

// recordKeys are the fields that only a computed record carries.
var recordKeys = [][]string{
	metricsKeys, makeProbabilityKeys, feedbackKeys,
	originalVideoKeys, analysisVideoKeys,
	setupFrameKeys, releaseFrameKeys, followFrameKeys,
}

// HasRecord reports whether p carries any field of a computed record, as
// opposed to a bare identifier.
func HasRecord(p shotsense.Payload) bool {
	for _, keys := range recordKeys {
		if _, _, ok := first(p, keys); ok {
			return true
		}
	}
	return false
}

// ID returns the payload's identifier, or "" when it has none.
func ID(p shotsense.Payload) (string, error) {
	return coalesceID(p)
}

func first(p shotsense.Payload, keys []string) (json.RawMessage, string, bool) {
	for _, k := range keys {
		if p.Has(k) {
			return p[k], k, true
		}
	}
	return nil, "", false
}

func coalesceID(p shotsense.Payload) (string, error) {
	raw, key, ok := first(p, idKeys)
	if !ok {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", eris.Errorf("analysis: %s is neither string nor number: %s", key, raw)
}

func coalesceString(p shotsense.Payload, keys []string) (*string, error) {
	raw, key, ok := first(p, keys)
	if !ok {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, eris.Wrapf(err, "analysis: decode %s", key)
	}
	return &s, nil
}

func coalesceTime(p shotsense.Payload, keys []string, id string) time.Time {
	raw, key, ok := first(p, keys)
	if !ok {
		return time.Time{}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		t, err := model.ParseTimestamp(s)
		if err == nil {
			return t
		}
	} else if f, ok := decodeFloat(raw); ok {
		return time.Unix(int64(f), 0).UTC()
	}

	zap.L().Warn("analysis: unparseable timestamp",
		zap.String("analysis_id", id),
		zap.String("key", key),
		zap.ByteString("value", raw),
	)
	return time.Time{}
}

// decodeFloat accepts a JSON number or a numeric string.
func decodeFloat(raw json.RawMessage) (float64, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

type rawFeedback struct {
	Feature  string          `json:"feature"`
	Score    json.RawMessage `json:"score"`
	Short    string          `json:"short"`
	Detailed string          `json:"detailed"`
}

func decodeFeedback(raw json.RawMessage) ([]model.FeedbackItem, error) {
	var items []rawFeedback
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	out := make([]model.FeedbackItem, 0, len(items))
	for _, it := range items {
		score, _ := decodeFloat(it.Score)
		out = append(out, model.FeedbackItem{
			Feature:  it.Feature,
			Score:    score,
			Short:    it.Short,
			Detailed: it.Detailed,
		})
	}
	return out, nil
}
