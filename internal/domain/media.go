package domain

import "time"

type FetchRequest struct {
	Locator string
	// Dir is the job workspace the source is written into.
	Dir  string
	Auth *AuthMaterial
}

type FetchResult struct {
	Path string
	Size int64
}

type TranscodeRequest struct {
	Input    string
	Output   string
	Start    time.Duration
	Duration time.Duration
	Bitrate  string
}

const DefaultBitrate = "96k"

var allowedBitrates = map[string]bool{
	"64k":  true,
	"96k":  true,
	"128k": true,
	"160k": true,
	"192k": true,
}

func ValidBitrate(b string) bool {
	return allowedBitrates[b]
}
