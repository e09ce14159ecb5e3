package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you-humble/audioclip/internal/domain"
)

type stubUsecase struct {
	submitErr error
	jobs      map[string]domain.Job
	artifact  domain.DownloadResult
	artErr    error
	cancelErr error
	panics    bool
}

func (s *stubUsecase) Submit(_ context.Context, req domain.SubmitRequest) (string, error) {
	if s.panics {
		panic("boom")
	}
	if s.submitErr != nil {
		return "", s.submitErr
	}
	return "job-1", nil
}

func (s *stubUsecase) Status(_ context.Context, id string) (domain.StatusResponse, error) {
	j, ok := s.jobs[id]
	if !ok {
		return domain.StatusResponse{}, domain.ErrNotFound
	}
	return domain.Snapshot(j, time.Now()), nil
}

func (s *stubUsecase) Artifact(context.Context, string) (domain.DownloadResult, error) {
	return s.artifact, s.artErr
}

func (s *stubUsecase) Cancel(_ context.Context, id string) (domain.StatusResponse, error) {
	if s.cancelErr != nil {
		return domain.StatusResponse{}, s.cancelErr
	}
	j := s.jobs[id]
	j.State = domain.StateCancelled
	return domain.Snapshot(j, time.Now()), nil
}

func newServer(t *testing.T, uc Usecase) *httptest.Server {
	t.Helper()
	mux := NewRouter(NewHandler(uc)).MountRoutes(http.NewServeMux())
	srv := httptest.NewServer(Wrap(mux, nil))
	t.Cleanup(srv.Close)
	return srv
}

func noRedirect(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	client := &http.Client{CheckRedirect: noRedirect}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestSubmitHandler(t *testing.T) {
	srv := newServer(t, &stubUsecase{})

	resp := do(t, http.MethodPost, srv.URL+"/jobs", `{"source_locator":"https://youtu.be/x","start":0,"end":10}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "/jobs/job-1", resp.Header.Get("Location"))
	assert.Equal(t, "job-1", decode[domain.SubmitResponse](t, resp).JobID)
}

func TestSubmitHandlerErrors(t *testing.T) {
	verr := &domain.ValidationError{}
	verr.Add("end", "must be after start")

	srv := newServer(t, &stubUsecase{submitErr: verr})

	resp := do(t, http.MethodPost, srv.URL+"/jobs", `{"source_locator":"https://youtu.be/x","start":20,"end":10}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[domain.ErrorResponse](t, resp)
	assert.Equal(t, "ValidationError", body.Error)
	require.Len(t, body.Fields, 1)
	assert.Equal(t, "end", body.Fields[0].Field)

	resp = do(t, http.MethodPost, srv.URL+"/jobs", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/jobs", `{"source_locator":"x","unknown":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	srv = newServer(t, &stubUsecase{submitErr: errors.New("redis down")})
	resp = do(t, http.MethodPost, srv.URL+"/jobs", `{"source_locator":"https://youtu.be/x","start":0,"end":10}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestStatusHandler(t *testing.T) {
	now := time.Now()
	srv := newServer(t, &stubUsecase{jobs: map[string]domain.Job{
		"p": {ID: "p", State: domain.StateExtracting, CreatedAt: now, UpdatedAt: now},
		"c": {ID: "c", State: domain.StateComplete, ArtifactRef: "clips/c.mp3", ArtifactSize: 42,
			ExpiresAt: now.Add(time.Hour), CreatedAt: now, UpdatedAt: now},
	}})

	resp := do(t, http.MethodGet, srv.URL+"/jobs/p", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	st := decode[domain.StatusResponse](t, resp)
	assert.Equal(t, domain.StateExtracting, st.State)
	assert.Empty(t, st.ArtifactURL)

	resp = do(t, http.MethodGet, srv.URL+"/jobs/c", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	st = decode[domain.StatusResponse](t, resp)
	assert.Equal(t, "/jobs/c/artifact", st.ArtifactURL)
	assert.EqualValues(t, 42, st.ArtifactSize)

	resp = do(t, http.MethodGet, srv.URL+"/jobs/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestArtifactHandler(t *testing.T) {
	uc := &stubUsecase{artifact: domain.DownloadResult{
		FileName: "clip-a.mp3",
		Size:     3,
		Content:  io.NopCloser(strings.NewReader("ID3")),
	}}
	srv := newServer(t, uc)

	resp := do(t, http.MethodGet, srv.URL+"/jobs/a/artifact", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "clip-a.mp3")
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ID3", string(data))

	uc.artifact = domain.DownloadResult{RedirectURL: "https://minio.local/clips/a.mp3?sig=1"}
	resp = do(t, http.MethodGet, srv.URL+"/jobs/a/artifact", "")
	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Equal(t, "https://minio.local/clips/a.mp3?sig=1", resp.Header.Get("Location"))

	for err, code := range map[error]int{
		domain.ErrNotFound:         http.StatusNotFound,
		domain.ErrArtifactExpired:  http.StatusNotFound,
		domain.ErrArtifactNotFound: http.StatusNotFound,
		domain.ErrJobFailed:        http.StatusConflict,
		domain.ErrJobCancelled:     http.StatusConflict,
		domain.ErrNotReady:         http.StatusTooEarly,
		errors.New("disk on fire"): http.StatusInternalServerError,
	} {
		uc.artErr = err
		resp = do(t, http.MethodGet, srv.URL+"/jobs/a/artifact", "")
		assert.Equal(t, code, resp.StatusCode, err.Error())
	}
}

func TestCancelHandler(t *testing.T) {
	uc := &stubUsecase{jobs: map[string]domain.Job{"a": {ID: "a", State: domain.StatePending}}}
	srv := newServer(t, uc)

	resp := do(t, http.MethodDelete, srv.URL+"/jobs/a", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.StateCancelled, decode[domain.StatusResponse](t, resp).State)

	uc.cancelErr = domain.ErrIllegalTransition
	resp = do(t, http.MethodDelete, srv.URL+"/jobs/a", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	uc.cancelErr = domain.ErrNotFound
	resp = do(t, http.MethodDelete, srv.URL+"/jobs/a", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRecoverAndHealth(t *testing.T) {
	srv := newServer(t, &stubUsecase{panics: true})

	resp := do(t, http.MethodPost, srv.URL+"/jobs", `{"source_locator":"https://youtu.be/x","start":0,"end":10}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	srv := newServer(t, &stubUsecase{})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/jobs", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
