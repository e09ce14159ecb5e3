package converter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/you-humble/audioclip/internal/domain"
)

type Transcoder interface {
	Probe(ctx context.Context, path string) (time.Duration, error)
	Transcode(ctx context.Context, req domain.TranscodeRequest) error
}

// Service exposes a Transcoder over gRPC. Paths in requests are relative to
// the work directory shared with the callers.
type Service struct {
	transcoder Transcoder
	workDir    string
	sem        *semaphore.Weighted
}

func NewService(transcoder Transcoder, workDir string, maxParallel int) *Service {
	if maxParallel <= 0 {
		maxParallel = 1
	}
	return &Service{
		transcoder: transcoder,
		workDir:    workDir,
		sem:        semaphore.NewWeighted(int64(maxParallel)),
	}
}

func Register(srv *grpc.Server, s *Service) {
	srv.RegisterService(&serviceDesc, s)
}

func (s *Service) Probe(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	path, err := s.resolve(req.GetFields()["path"].GetStringValue())
	if err != nil {
		return nil, err
	}

	d, err := s.transcoder.Probe(ctx, path)
	if err != nil {
		slog.Error("probe failed", slog.String("path", path), slog.String("error", err.Error()))
		return nil, toStatus(ctx, err)
	}

	return structpb.NewStruct(map[string]any{
		"duration_ms": millis(d),
	})
}

func (s *Service) Transcode(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()

	input, err := s.resolve(f["input"].GetStringValue())
	if err != nil {
		return nil, err
	}
	output, err := s.resolve(f["output"].GetStringValue())
	if err != nil {
		return nil, err
	}

	tr := domain.TranscodeRequest{
		Input:    input,
		Output:   output,
		Start:    fromMillis(f["start_ms"].GetNumberValue()),
		Duration: fromMillis(f["duration_ms"].GetNumberValue()),
		Bitrate:  f["bitrate"].GetStringValue(),
	}
	if tr.Duration <= 0 {
		return nil, status.Error(codes.InvalidArgument, "duration must be positive")
	}
	if tr.Bitrate != "" && !domain.ValidBitrate(tr.Bitrate) {
		return nil, status.Errorf(codes.InvalidArgument, "unsupported bitrate %q", tr.Bitrate)
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, status.FromContextError(err).Err()
	}
	defer s.sem.Release(1)

	if err := s.transcoder.Transcode(ctx, tr); err != nil {
		slog.Error("transcode failed",
			slog.String("input", input),
			slog.String("error", err.Error()),
		)
		return nil, toStatus(ctx, err)
	}

	info, err := os.Stat(output)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "stat output: %v", err)
	}

	slog.Info("transcode success",
		slog.String("output", output),
		slog.Int64("size", info.Size()),
	)

	return structpb.NewStruct(map[string]any{
		"size": info.Size(),
	})
}

func (s *Service) resolve(rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", status.Error(codes.InvalidArgument, "empty path")
	}

	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", status.Errorf(codes.InvalidArgument, "path %q escapes work dir", rel)
	}

	return filepath.Join(s.workDir, clean), nil
}

func toStatus(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return status.FromContextError(ctx.Err()).Err()
	}
	return status.Error(codes.Internal, fmt.Sprint(err))
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func fromMillis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
