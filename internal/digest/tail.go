package digest

import (
	"os"
	"strings"
)

const (
	tailWindowInitial = 100 * 1024
	tailWindowMax     = 1024 * 1024
)

// tailLines reads the end of the file and returns complete JSONL lines.
// The window starts at 100 KB and doubles up to 1 MB while no usable line
// is found. When the window does not start at byte 0 the first line is
// dropped as likely truncated.
func tailLines(path string) ([]string, error) {
	window := tailWindowInitial
	for {
		lines, truncated, err := readTail(path, window)
		if err != nil {
			return nil, err
		}
		if len(lines) > 0 || (!truncated && window > tailWindowInitial) {
			return lines, nil
		}
		if !truncated {
			// Whole file read and still nothing usable.
			return lines, nil
		}
		if window >= tailWindowMax {
			return lines, nil
		}
		window *= 2
		if window > tailWindowMax {
			window = tailWindowMax
		}
	}
}

// readTail returns the candidate lines in the last window bytes and
// whether the window cut off the start of the file.
func readTail(path string, window int) ([]string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer func() {
		_ = f.Close()
	}()

	info, err := f.Stat()
	if err != nil {
		return nil, false, err
	}
	size := info.Size()
	offset := int64(0)
	truncated := false
	if size > int64(window) {
		offset = size - int64(window)
		truncated = true
	}

	buf := make([]byte, size-offset)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return nil, truncated, err
	}

	raw := strings.Split(string(buf), "\n")
	if truncated && len(raw) > 0 {
		raw = raw[1:]
	}
	var lines []string
	for _, line := range raw {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, truncated, nil
}
