package jobstore

import (
	"strconv"
	"time"

	"github.com/you-humble/audioclip/internal/domain"
)

func jobKey(id string) string {
	return "job:" + id
}

func activeKey() string {
	return "jobs:active"
}

func byCreatedKey() string {
	return "jobs:by_created"
}

func encode(j domain.Job) map[string]any {
	h := map[string]any{
		"id":             j.ID,
		"source_locator": j.SourceLocator,
		"range_start":    int64(j.Range.Start),
		"range_end":      int64(j.Range.End),
		"bitrate":        j.Bitrate,
		"state":          string(j.State),
		"created_at":     j.CreatedAt.UnixNano(),
		"updated_at":     j.UpdatedAt.UnixNano(),
	}
	for k, v := range encodeFields(fieldsOf(j)) {
		h[k] = v
	}
	return h
}

func fieldsOf(j domain.Job) domain.TransitionFields {
	return domain.TransitionFields{
		ArtifactRef:   j.ArtifactRef,
		ArtifactSize:  j.ArtifactSize,
		ClipDuration:  j.ClipDuration,
		ExpiresAt:     j.ExpiresAt,
		Authenticated: j.Authenticated,
		Error:         j.Error,
	}
}

// encodeFields only emits the columns that are set so a transition never
// clears what an earlier one wrote.
func encodeFields(f domain.TransitionFields) map[string]any {
	h := map[string]any{}
	if f.ArtifactRef != "" {
		h["artifact_ref"] = f.ArtifactRef
	}
	if f.ArtifactSize > 0 {
		h["artifact_size"] = f.ArtifactSize
	}
	if f.ClipDuration > 0 {
		h["clip_duration"] = int64(f.ClipDuration)
	}
	if !f.ExpiresAt.IsZero() {
		h["expires_at"] = f.ExpiresAt.UnixNano()
	}
	if f.Authenticated {
		h["authenticated"] = "1"
	}
	if f.Error != nil {
		h["error_kind"] = string(f.Error.Kind)
		h["error_stage"] = string(f.Error.Stage)
		h["error_message"] = f.Error.Message
	}
	return h
}

func decode(res map[string]string) domain.Job {
	j := domain.Job{
		ID:            res["id"],
		SourceLocator: res["source_locator"],
		Bitrate:       res["bitrate"],
		State:         domain.State(res["state"]),
		ArtifactRef:   res["artifact_ref"],
		Authenticated: res["authenticated"] == "1",
	}

	j.Range.Start = time.Duration(parseInt(res["range_start"]))
	j.Range.End = time.Duration(parseInt(res["range_end"]))
	j.ArtifactSize = parseInt(res["artifact_size"])
	j.ClipDuration = time.Duration(parseInt(res["clip_duration"]))
	j.CreatedAt = parseTime(res["created_at"])
	j.UpdatedAt = parseTime(res["updated_at"])
	j.ExpiresAt = parseTime(res["expires_at"])

	if kind := res["error_kind"]; kind != "" {
		j.Error = &domain.JobError{
			Kind:    domain.ErrorKind(kind),
			Stage:   domain.State(res["error_stage"]),
			Message: res["error_message"],
		}
	}

	return j
}

func parseInt(v string) int64 {
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseTime(v string) time.Time {
	n := parseInt(v)
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
