// Package archive preserves superseded save files. When a legacy-format war
// save is migrated at startup, the original bytes are kept compressed under
// the data dir so the migration stays reversible by hand.
package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

type LegacyArchiveMeta struct {
	Source    string `json:"source"`
	Archived  string `json:"archived"`
	CreatedAt string `json:"created_at"`
	Reason    string `json:"reason"`
	SizeBytes int64  `json:"size_bytes"`
}

// ArchiveLegacyWarFile compresses the legacy save at srcPath into
// `dataDir/archives/` and writes a small meta record next to it. The source
// file is left in place; the caller overwrites it with the migrated format.
func ArchiveLegacyWarFile(dataDir, srcPath string, now time.Time) (archivedPath string, err error) {
	in, err := os.Open(srcPath)
	if err != nil {
		return "", err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return "", err
	}

	archiveDir := filepath.Join(dataDir, "archives")
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", err
	}

	stamp := now.UTC().Format("2006-01-02T15-04-05")
	dst := filepath.Join(archiveDir, fmt.Sprintf("legacy_%s_%s.zst", stamp, filepath.Base(srcPath)))
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer func() { _ = out.Close() }()

	enc, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(enc, in); err != nil {
		_ = enc.Close()
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}

	meta := LegacyArchiveMeta{
		Source:    filepath.Base(srcPath),
		Archived:  filepath.Base(dst),
		CreatedAt: now.UTC().Format(time.RFC3339Nano),
		Reason:    "legacy war save migrated to versioned format",
		SizeBytes: info.Size(),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(dst+".meta.json", b, 0o644)
	}

	return dst, nil
}

// ReadArchived decompresses one archived legacy save, mainly for tests and
// manual recovery.
func ReadArchived(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	return io.ReadAll(dec)
}
