package domain

import (
	"io"
	"time"
)

type SubmitRequest struct {
	SourceLocator string   `json:"source_locator" validate:"required,max=2048"`
	Start         Timecode `json:"start"`
	End           Timecode `json:"end"`
	Bitrate       string   `json:"bitrate,omitempty" validate:"omitempty,oneof=64k 96k 128k 160k 192k"`
}

type SubmitResponse struct {
	JobID string `json:"job_id"`
}

// StatusResponse is the point-in-time view of a job returned to pollers.
type StatusResponse struct {
	JobID           string     `json:"job_id"`
	State           State      `json:"state"`
	Stage           string     `json:"stage"`
	Error           *JobError  `json:"error,omitempty"`
	ArtifactURL     string     `json:"artifact_url,omitempty"`
	ArtifactSize    int64      `json:"artifact_size,omitempty"`
	ClipDuration    float64    `json:"clip_duration,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	ArtifactExpired bool       `json:"artifact_expired"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func ArtifactPath(jobID string) string {
	return "/jobs/" + jobID + "/artifact"
}

// Snapshot builds the status view. The artifact url is a stable path that
// does not change between reads.
func Snapshot(j Job, now time.Time) StatusResponse {
	resp := StatusResponse{
		JobID:     j.ID,
		State:     j.State,
		Stage:     j.State.Label(),
		Error:     j.Error,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}

	if j.State == StateComplete {
		resp.ArtifactURL = ArtifactPath(j.ID)
		resp.ArtifactSize = j.ArtifactSize
		resp.ClipDuration = j.ClipDuration.Seconds()
		if !j.ExpiresAt.IsZero() {
			exp := j.ExpiresAt
			resp.ExpiresAt = &exp
		}
		resp.ArtifactExpired = j.ArtifactExpired(now)
	}

	return resp
}

type DownloadResult struct {
	FileName string
	Size     int64
	Content  io.ReadCloser

	// RedirectURL is set instead of Content when the client should fetch
	// the artifact from the object store directly.
	RedirectURL string
}

type ErrorResponse struct {
	Error   string       `json:"error"`
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`
}
