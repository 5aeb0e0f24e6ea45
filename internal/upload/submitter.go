// Package upload submits shot videos for analysis.
package upload

import (
	"context"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/shotsense-cli/internal/analysis"
	"github.com/sells-group/shotsense-cli/internal/auth"
	"github.com/sells-group/shotsense-cli/internal/model"
	"github.com/sells-group/shotsense-cli/internal/outcome"
	"github.com/sells-group/shotsense-cli/pkg/shotsense"
)

// ErrSubmissionInFlight rejects a submit while another one is running.
var ErrSubmissionInFlight = eris.New("upload: a submission is already in progress")

// Messages for local validation failures.
const (
	MsgNoVideo          = "Please choose a video to upload."
	MsgUnsupportedVideo = "Please choose a video file (mp4, mov, m4v, avi or webm)."
	MsgInvalidArm       = "Shooting arm must be LEFT or RIGHT."
	MsgInFlight         = "An upload is already in progress."
)

// VideoExtensions are accepted when the content type is not conclusive.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".m4v":  true,
	".avi":  true,
	".webm": true,
}

// Video is a local video file to submit.
type Video struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// OpenVideo opens path for submission. The caller closes the returned
// closer.
func OpenVideo(path string) (*Video, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "upload: open %s", path)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, eris.Wrapf(err, "upload: stat %s", path)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, nil, eris.Errorf("upload: %s is a directory", path)
	}
	return &Video{
		Filename:    filepath.Base(path),
		ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
		Size:        info.Size(),
		Body:        f,
	}, f, nil
}

// Submission is a successful upload.
type Submission struct {
	// ID identifies the new analysis. It is empty when the service returned
	// the record without one.
	ID string
	// Record is set when the service returned the computed analysis inline.
	Record *model.AnalysisRecord
	// Handoff carries Record to the view that follows the upload.
	Handoff *model.Handoff
}

// Uploader is the slice of the service client the submitter needs.
type Uploader interface {
	Upload(ctx context.Context, req shotsense.UploadRequest) (shotsense.Payload, error)
}

// Journal records successful submissions locally.
type Journal interface {
	RecordUpload(ctx context.Context, e model.UploadEntry) error
}

// Submitter uploads one video at a time.
type Submitter struct {
	client  Uploader
	gate    *auth.Gate
	journal Journal
	busy    atomic.Bool
	now     func() time.Time
}

// NewSubmitter creates a submitter. journal may be nil.
func NewSubmitter(client Uploader, gate *auth.Gate, journal Journal) *Submitter {
	return &Submitter{client: client, gate: gate, journal: journal, now: time.Now}
}

// Busy reports whether a submission is in flight.
func (s *Submitter) Busy() bool {
	return s.busy.Load()
}

// Submit validates the video locally, uploads it under the auth gate and
// maps the response onto a Submission. Nothing is sent when validation
// fails or another submission is in flight.
func (s *Submitter) Submit(ctx context.Context, video *Video, arm model.ShootingArm) outcome.Outcome[*Submission] {
	if video == nil || video.Body == nil || video.Size == 0 || strings.TrimSpace(video.Filename) == "" {
		return outcome.Validation[*Submission](MsgNoVideo, eris.New("upload: no video selected"))
	}
	if !isVideo(video) {
		return outcome.Validation[*Submission](MsgUnsupportedVideo,
			eris.Errorf("upload: %s (%s) is not a video", video.Filename, video.ContentType))
	}
	if arm == "" {
		arm = model.DefaultShootingArm
	}
	if _, err := model.ParseShootingArm(string(arm)); err != nil {
		return outcome.Validation[*Submission](MsgInvalidArm, err)
	}

	if !s.busy.CompareAndSwap(false, true) {
		return outcome.Validation[*Submission](MsgInFlight, ErrSubmissionInFlight)
	}
	defer s.busy.Store(false)

	log := zap.L().With(zap.String("filename", video.Filename), zap.String("arm", string(arm)))
	log.Info("upload: submitting video", zap.Int64("bytes", video.Size))

	sent := auth.Guard(ctx, s.gate, func(ctx context.Context) (shotsense.Payload, error) {
		return s.client.Upload(ctx, shotsense.UploadRequest{
			Filename:    video.Filename,
			ContentType: video.ContentType,
			Body:        video.Body,
			ShootingArm: string(arm),
		})
	})
	if !sent.IsOK() {
		log.Warn("upload: failed", zap.String("kind", string(sent.Kind)), zap.Error(sent.Err))
		return outcome.Convert[*Submission](sent)
	}

	sub, err := toSubmission(sent.Value)
	if err != nil {
		log.Error("upload: unusable response", zap.Error(err))
		return outcome.Transport[*Submission](err)
	}
	log.Info("upload: analysis created", zap.String("analysis_id", sub.ID), zap.Bool("inline_record", sub.Record != nil))

	s.journalize(ctx, sub, video, arm)
	return outcome.OK(sub)
}

func toSubmission(p shotsense.Payload) (*Submission, error) {
	id, err := analysis.ID(p)
	if err != nil {
		return nil, err
	}

	sub := &Submission{ID: id}
	if analysis.HasRecord(p) {
		rec, err := analysis.Coalesce(p, id)
		if err != nil {
			return nil, err
		}
		sub.Record = rec
		sub.Handoff = model.NewHandoff(rec)
	}

	if sub.ID == "" && sub.Record == nil {
		return nil, eris.New("upload: response has neither id nor record")
	}
	return sub, nil
}

func (s *Submitter) journalize(ctx context.Context, sub *Submission, video *Video, arm model.ShootingArm) {
	if s.journal == nil {
		return
	}
	entry := model.UploadEntry{
		ID:          uuid.NewString(),
		AnalysisID:  sub.ID,
		Filename:    video.Filename,
		ShootingArm: arm,
		SubmittedAt: s.now().UTC(),
	}
	if err := s.journal.RecordUpload(ctx, entry); err != nil {
		zap.L().Warn("upload: journal write failed", zap.String("analysis_id", sub.ID), zap.Error(err))
	}
}

func isVideo(v *Video) bool {
	ct := strings.ToLower(strings.TrimSpace(v.ContentType))
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}
	if strings.HasPrefix(ct, "video/") || ct == "application/octet-stream" {
		return true
	}
	return VideoExtensions[strings.ToLower(filepath.Ext(v.Filename))]
}
