package converter

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/you-humble/audioclip/internal/domain"
)

func NewConnection(addr string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	return conn, nil
}

// Client is a remote Transcoder. workDir is the caller's mount of the
// directory shared with the converter.
type Client struct {
	conn    grpc.ClientConnInterface
	workDir string
}

func NewClient(conn grpc.ClientConnInterface, workDir string) *Client {
	return &Client{conn: conn, workDir: workDir}
}

func (c *Client) Probe(ctx context.Context, path string) (time.Duration, error) {
	rel, err := c.relative(path)
	if err != nil {
		return 0, err
	}

	in, err := structpb.NewStruct(map[string]any{"path": rel})
	if err != nil {
		return 0, err
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, probeMethod, in, out); err != nil {
		return 0, fromStatus("probe", err)
	}

	return fromMillis(out.GetFields()["duration_ms"].GetNumberValue()), nil
}

func (c *Client) Transcode(ctx context.Context, req domain.TranscodeRequest) error {
	input, err := c.relative(req.Input)
	if err != nil {
		return err
	}
	output, err := c.relative(req.Output)
	if err != nil {
		return err
	}

	in, err := structpb.NewStruct(map[string]any{
		"input":       input,
		"output":      output,
		"start_ms":    millis(req.Start),
		"duration_ms": millis(req.Duration),
		"bitrate":     req.Bitrate,
	})
	if err != nil {
		return err
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, transcodeMethod, in, out); err != nil {
		return fromStatus("transcode", err)
	}
	return nil
}

func (c *Client) relative(path string) (string, error) {
	rel, err := filepath.Rel(c.workDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the shared work dir %s", path, c.workDir)
	}
	return filepath.ToSlash(rel), nil
}

func fromStatus(op string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("converter %s: %w", op, err)
	}

	switch st.Code() {
	case codes.DeadlineExceeded:
		return fmt.Errorf("converter %s: %w", op, context.DeadlineExceeded)
	case codes.Canceled:
		return fmt.Errorf("converter %s: %w", op, context.Canceled)
	}
	return fmt.Errorf("converter %s: %s", op, st.Message())
}
