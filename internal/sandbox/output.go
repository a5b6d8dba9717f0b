package sandbox

import (
	"io"
	"strings"

	"dotminer/internal/detect"
)

// scanArtifact extracts the text between the salted delimiter lines.
// Both markers must be present, in order; absence of the end marker
// means the output was truncated or the harness died mid-print, and the
// caller treats that as malformed.
func scanArtifact(output, salt string) (string, bool) {
	begin := detect.BeginMarker(salt)
	end := detect.EndMarker(salt)

	lines := strings.Split(output, "\n")
	start := -1
	for i, line := range lines {
		switch strings.TrimRight(line, "\r") {
		case begin:
			if start == -1 {
				start = i + 1
			}
		case end:
			if start != -1 {
				return strings.Join(lines[start:i], "\n"), true
			}
		}
	}
	return "", false
}

// limitedWriter caps total bytes written, discarding the rest. Writes
// always report full length so the child never sees a short write.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)

	if lw.written >= lw.max {
		lw.truncated = true
		return n, nil
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
