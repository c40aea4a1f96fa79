package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// mp4Header is the start of an ISO BMFF ftyp box, enough for tools that sniff
// the first bytes of a container.
var mp4Header = []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm'}

// WriteFile creates path with size bytes of placeholder media content. Stub
// ffmpeg runners never decode it; it only has to exist and be non-empty.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	size = max(size, int64(len(mp4Header)))
	content := make([]byte, 0, size)
	content = append(content, mp4Header...)
	content = append(content, bytes.Repeat([]byte{0}, int(size)-len(mp4Header))...)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
