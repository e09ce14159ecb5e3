package artifactstore

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

const ContentType = "audio/mpeg"

var ErrPresignUnsupported = errors.New("presigned urls not supported by backend")

// Meta is stored alongside the object.
type Meta struct {
	ExpiresAt time.Time
	Attrs     map[string]string
}

type Object struct {
	Ref       string
	Size      int64
	SHA256    string
	ExpiresAt time.Time
}

// Key is the object key of a job's clip.
func Key(jobID string) string {
	return "clips/" + jobID + ".mp3"
}

func cleanKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}

	clean := path.Clean(key)
	if strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid key: %s", key)
	}

	return strings.TrimLeft(clean, "/"), nil
}
