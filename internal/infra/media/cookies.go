package media

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/you-humble/audioclip/internal/domain"
)

// WriteCookieFile writes cookies in the Netscape format yt-dlp reads and
// returns the file path. The caller removes it.
func WriteCookieFile(dir string, cookies []domain.Cookie) (string, error) {
	path := filepath.Join(dir, "cookies-"+uuid.NewString()[:8]+".txt")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("create cookie file: %w", err)
	}

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "# Netscape HTTP Cookie File")
	for _, c := range cookies {
		if !jarSafe(c) {
			continue
		}
		fmt.Fprintln(w, netscapeLine(c))
	}

	if err := w.Flush(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write cookie file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close cookie file: %w", err)
	}

	return path, nil
}

func netscapeLine(c domain.Cookie) string {
	// the subdomain flag must agree with the leading dot or the jar is rejected
	includeSub := "FALSE"
	if strings.HasPrefix(c.Domain, ".") {
		includeSub = "TRUE"
	}
	secure := "FALSE"
	if c.Secure {
		secure = "TRUE"
	}

	return strings.Join([]string{
		c.Domain,
		includeSub,
		c.Path,
		secure,
		fmt.Sprint(c.Expires),
		c.Name,
		c.Value,
	}, "\t")
}

// jarSafe reports whether c can be written as a single tab-separated line.
func jarSafe(c domain.Cookie) bool {
	for _, field := range []string{c.Domain, c.Path, c.Name, c.Value} {
		if strings.ContainsAny(field, "\t\r\n") {
			return false
		}
	}
	return c.Name != ""
}
