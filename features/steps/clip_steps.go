// Package steps binds the clip job feature files to an in-process stack:
// memory job store, local artifact store, in-process dispatcher and the
// HTTP transport, with stubbed fetch and transcode tools.
package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cucumber/godog"

	"github.com/you-humble/audioclip/internal/domain"
	"github.com/you-humble/audioclip/internal/infra/queue"
	"github.com/you-humble/audioclip/internal/infra/secret"
	artifactstore "github.com/you-humble/audioclip/internal/infra/store/artifact"
	jobstore "github.com/you-humble/audioclip/internal/infra/store/job"
	"github.com/you-humble/audioclip/internal/pipeline"
	"github.com/you-humble/audioclip/internal/transport"
	"github.com/you-humble/audioclip/internal/usecase"
)

type sourceFetcher struct{}

func (sourceFetcher) Fetch(_ context.Context, req domain.FetchRequest) (domain.FetchResult, error) {
	path := filepath.Join(req.Dir, "source.webm")
	if err := os.WriteFile(path, []byte("webm"), 0o644); err != nil {
		return domain.FetchResult{}, err
	}
	return domain.FetchResult{Path: path, Size: 4}, nil
}

type sourceTranscoder struct {
	total time.Duration
}

func (s sourceTranscoder) Probe(context.Context, string) (time.Duration, error) {
	return s.total, nil
}

func (s sourceTranscoder) Transcode(_ context.Context, req domain.TranscodeRequest) error {
	return os.WriteFile(req.Output, []byte(fmt.Sprintf("ID3 %s %s", req.Start, req.Duration)), 0o644)
}

type memoryJobs interface {
	pipeline.JobStore
	usecase.JobStore
}

// historyJobs remembers every state a job entered.
type historyJobs struct {
	memoryJobs

	mu      sync.Mutex
	history map[string][]domain.State
}

func (h *historyJobs) Transition(ctx context.Context, id string, from, to domain.State, f domain.TransitionFields) error {
	if err := h.memoryJobs.Transition(ctx, id, from, to, f); err != nil {
		return err
	}
	h.mu.Lock()
	h.history[id] = append(h.history[id], to)
	h.mu.Unlock()
	return nil
}

func (h *historyJobs) passedThrough(id string, s domain.State) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, st := range h.history[id] {
		if st == s {
			return true
		}
	}
	return false
}

type clipWorld struct {
	sourceLength time.Duration
	retention    time.Duration

	dir    string
	jobs   *historyJobs
	queue  interface{ Close() }
	server *httptest.Server

	lastStatus int
	lastError  domain.ErrorResponse
	jobIDs     []string
	statuses   map[string]domain.StatusResponse
}

func (w *clipWorld) start() error {
	if w.server != nil {
		return nil
	}

	dir, err := os.MkdirTemp("", "clip-features-")
	if err != nil {
		return err
	}
	w.dir = dir

	artifacts, err := artifactstore.NewLocalStore(filepath.Join(dir, "artifacts"))
	if err != nil {
		return err
	}
	w.jobs = &historyJobs{memoryJobs: jobstore.NewMemoryJobStore(), history: map[string][]domain.State{}}

	worker := pipeline.NewWorker(
		pipeline.Config{
			WorkDir:   filepath.Join(dir, "work"),
			Budget:    pipeline.Budget{Total: time.Minute, TerminalReserve: time.Second},
			Retention: w.retention,
		},
		w.jobs,
		artifacts,
		pipeline.NewFetchPolicy(sourceFetcher{}, secret.NewNoneProvider()),
		sourceTranscoder{total: w.sourceLength},
	)
	q := queue.NewLocal(context.Background(), 2, worker.Process)
	w.queue = q

	uc := usecase.New(usecase.Config{}, w.jobs, artifacts, q)
	mux := transport.NewRouter(transport.NewHandler(uc)).MountRoutes(http.NewServeMux())
	w.server = httptest.NewServer(transport.Wrap(mux, nil))
	return nil
}

func (w *clipWorld) stop() {
	if w.server != nil {
		w.server.Close()
	}
	if w.queue != nil {
		w.queue.Close()
	}
	if w.dir != "" {
		_ = os.RemoveAll(w.dir)
	}
}

func (w *clipWorld) aSourceVideoOfMinutes(minutes int) error {
	w.sourceLength = time.Duration(minutes) * time.Minute
	return nil
}

func (w *clipWorld) artifactsRetainedFor(n int, unit string) error {
	d, err := time.ParseDuration(fmt.Sprintf("%d%s", n, unit[:1]))
	if err != nil {
		return err
	}
	w.retention = d
	return nil
}

func (w *clipWorld) iSubmitAClip(url, start, end string) error {
	if err := w.start(); err != nil {
		return err
	}

	body, _ := json.Marshal(map[string]string{"source_locator": url, "start": start, "end": end})
	resp, err := http.Post(w.server.URL+"/jobs", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	w.lastStatus = resp.StatusCode
	if resp.StatusCode != http.StatusAccepted {
		return json.NewDecoder(resp.Body).Decode(&w.lastError)
	}

	var sr domain.SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return err
	}
	w.jobIDs = append(w.jobIDs, sr.JobID)
	return nil
}

func (w *clipWorld) iReceiveAJobID() error {
	if w.lastStatus != http.StatusAccepted || len(w.jobIDs) == 0 || w.jobIDs[0] == "" {
		return fmt.Errorf("expected a job id, got status %d: %+v", w.lastStatus, w.lastError)
	}
	return nil
}

func (w *clipWorld) status(id string) (domain.StatusResponse, error) {
	resp, err := http.Get(w.server.URL + "/jobs/" + id)
	if err != nil {
		return domain.StatusResponse{}, err
	}
	defer resp.Body.Close()

	var st domain.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return domain.StatusResponse{}, err
	}

	terminal := st.State.Terminal()
	if terminal != (resp.StatusCode == http.StatusOK) {
		return st, fmt.Errorf("state %s answered with status %d", st.State, resp.StatusCode)
	}
	return st, nil
}

func (w *clipWorld) pollUntilTerminal() error {
	if len(w.jobIDs) == 0 {
		return fmt.Errorf("no job submitted")
	}
	w.statuses = make(map[string]domain.StatusResponse, len(w.jobIDs))

	deadline := time.Now().Add(10 * time.Second)
	for _, id := range w.jobIDs {
		for {
			st, err := w.status(id)
			if err != nil {
				return err
			}
			if st.State.Terminal() {
				w.statuses[id] = st
				break
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("job %s still %s", id, st.State)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
	return nil
}

func (w *clipWorld) current() (domain.StatusResponse, error) {
	id := w.jobIDs[len(w.jobIDs)-1]
	return w.status(id)
}

func (w *clipWorld) theJobStateIs(state string) error {
	st, err := w.current()
	if err != nil {
		return err
	}
	if string(st.State) != state {
		return fmt.Errorf("expected %s, got %s (error %+v)", state, st.State, st.Error)
	}
	return nil
}

func (w *clipWorld) theClipDurationIsAbout(secs int) error {
	st, err := w.current()
	if err != nil {
		return err
	}
	if math.Abs(st.ClipDuration-float64(secs)) > 0.5 {
		return fmt.Errorf("clip duration %.2fs, want about %ds", st.ClipDuration, secs)
	}
	return nil
}

func (w *clipWorld) download(id string) (int, []byte, error) {
	resp, err := http.Get(w.server.URL + domain.ArtifactPath(id))
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, err
}

func (w *clipWorld) theArtifactCanBeDownloaded() error {
	code, data, err := w.download(w.jobIDs[len(w.jobIDs)-1])
	if err != nil {
		return err
	}
	if code != http.StatusOK || !bytes.HasPrefix(data, []byte("ID3")) {
		return fmt.Errorf("download answered %d with %q", code, data)
	}
	return nil
}

func (w *clipWorld) rejectedWithValidationErrorOn(field string) error {
	if w.lastStatus != http.StatusBadRequest {
		return fmt.Errorf("expected 400, got %d", w.lastStatus)
	}
	for _, f := range w.lastError.Fields {
		if f.Field == field {
			return nil
		}
	}
	return fmt.Errorf("no error on %s in %+v", field, w.lastError.Fields)
}

func (w *clipWorld) noJobWasCreated() error {
	if len(w.jobIDs) != 0 {
		return fmt.Errorf("jobs were created: %v", w.jobIDs)
	}
	return nil
}

func (w *clipWorld) theJobPassedThrough(state string) error {
	id := w.jobIDs[len(w.jobIDs)-1]
	if !w.jobs.passedThrough(id, domain.State(state)) {
		return fmt.Errorf("job %s never entered %s", id, state)
	}
	return nil
}

func (w *clipWorld) theJobErrorIs(kind, stage string) error {
	st, err := w.current()
	if err != nil {
		return err
	}
	if st.Error == nil {
		return fmt.Errorf("job has no error")
	}
	if string(st.Error.Kind) != kind || string(st.Error.Stage) != stage {
		return fmt.Errorf("got %s at %s, want %s at %s", st.Error.Kind, st.Error.Stage, kind, stage)
	}
	return nil
}

func (w *clipWorld) iWaitUntilTheArtifactExpires() error {
	st, err := w.current()
	if err != nil {
		return err
	}
	if st.ExpiresAt == nil {
		return fmt.Errorf("job has no expiry")
	}
	time.Sleep(time.Until(*st.ExpiresAt) + 50*time.Millisecond)
	return nil
}

func (w *clipWorld) theStatusReportsExpired() error {
	st, err := w.current()
	if err != nil {
		return err
	}
	if !st.ArtifactExpired {
		return fmt.Errorf("artifact not reported as expired, expires at %v", st.ExpiresAt)
	}
	return nil
}

func (w *clipWorld) downloadingFailsWith(code int) error {
	got, _, err := w.download(w.jobIDs[len(w.jobIDs)-1])
	if err != nil {
		return err
	}
	if got != code {
		return fmt.Errorf("download answered %d, want %d", got, code)
	}
	return nil
}

func (w *clipWorld) theTwoJobIDsDiffer() error {
	if len(w.jobIDs) != 2 || w.jobIDs[0] == w.jobIDs[1] {
		return fmt.Errorf("expected two distinct ids, got %v", w.jobIDs)
	}
	return nil
}

func (w *clipWorld) everyJobCompleteWithOwnArtifact(state string) error {
	seen := map[string]bool{}
	for _, id := range w.jobIDs {
		st := w.statuses[id]
		if string(st.State) != state {
			return fmt.Errorf("job %s is %s", id, st.State)
		}
		if seen[st.ArtifactURL] {
			return fmt.Errorf("artifact %s is shared", st.ArtifactURL)
		}
		seen[st.ArtifactURL] = true

		if code, _, err := w.download(id); err != nil || code != http.StatusOK {
			return fmt.Errorf("download of %s answered %d: %v", id, code, err)
		}
	}
	return nil
}

func InitializeClipScenario(ctx *godog.ScenarioContext) {
	w := &clipWorld{}

	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		*w = clipWorld{sourceLength: 3 * time.Minute, retention: time.Hour}
		return c, nil
	})
	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		w.stop()
		return c, nil
	})

	ctx.Step(`^a source video that is (\d+) minutes long$`, w.aSourceVideoOfMinutes)
	ctx.Step(`^artifacts are retained for (\d+) (second|seconds|minute|minutes|hour|hours)$`, w.artifactsRetainedFor)
	ctx.Step(`^I submit a clip of "([^"]*)" from "([^"]*)" to "([^"]*)"$`, w.iSubmitAClip)
	ctx.Step(`^I receive a job id$`, w.iReceiveAJobID)
	ctx.Step(`^I poll (?:the|every) job until it is terminal$`, w.pollUntilTerminal)
	ctx.Step(`^the job state is "([^"]*)"$`, w.theJobStateIs)
	ctx.Step(`^the clip duration is about (\d+) seconds$`, w.theClipDurationIsAbout)
	ctx.Step(`^the artifact can be downloaded$`, w.theArtifactCanBeDownloaded)
	ctx.Step(`^the submission is rejected with a validation error on "([^"]*)"$`, w.rejectedWithValidationErrorOn)
	ctx.Step(`^no job was created$`, w.noJobWasCreated)
	ctx.Step(`^the job passed through "([^"]*)"$`, w.theJobPassedThrough)
	ctx.Step(`^the job error kind is "([^"]*)" at stage "([^"]*)"$`, w.theJobErrorIs)
	ctx.Step(`^I wait until the artifact expires$`, w.iWaitUntilTheArtifactExpires)
	ctx.Step(`^the status reports the artifact as expired$`, w.theStatusReportsExpired)
	ctx.Step(`^downloading the artifact fails with status (\d+)$`, w.downloadingFailsWith)
	ctx.Step(`^the two job ids differ$`, w.theTwoJobIDsDiffer)
	ctx.Step(`^every job is "([^"]*)" with its own artifact$`, w.everyJobCompleteWithOwnArtifact)
}
