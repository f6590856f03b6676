// Package warfile reads and writes the durable war save. Two on-disk
// formats exist: the current versioned SaveV1 and a legacy bare mapping of
// initiator to targets with no timing data. Reads sniff the format; writes
// always emit SaveV1.
package warfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const Version = 1

// SaveV1 is the versioned on-disk format: wars plus per-war declaration
// timestamps keyed "initiator:target". Ally sets, pending invites and
// bypass votes are deliberately not part of the save.
type SaveV1 struct {
	Version int                 `json:"version"`
	Wars    map[string][]string `json:"wars"`
	Starts  map[string]int64    `json:"starts"`
}

// File is the tagged result of sniffing one save file.
type File struct {
	V1     *SaveV1
	Legacy map[string][]string
}

// Read decodes path into its tagged variant. A missing file yields an empty
// V1 save; a corrupt file yields an error the caller is expected to treat
// as "start empty", not as fatal.
func Read(path string) (File, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return File{V1: &SaveV1{Version: Version, Wars: map[string][]string{}, Starts: map[string]int64{}}}, nil
	}
	if err != nil {
		return File{}, err
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return File{}, fmt.Errorf("war save corrupt: %w", err)
	}

	if _, ok := probe["wars"]; ok {
		var save SaveV1
		if err := json.Unmarshal(raw, &save); err != nil {
			return File{}, fmt.Errorf("war save corrupt: %w", err)
		}
		if save.Wars == nil {
			save.Wars = map[string][]string{}
		}
		if save.Starts == nil {
			save.Starts = map[string]int64{}
		}
		return File{V1: &save}, nil
	}

	var legacy map[string][]string
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return File{}, fmt.Errorf("war save corrupt: %w", err)
	}
	return File{Legacy: legacy}, nil
}

// Migrate turns a tagged file into the current format. Legacy saves carry no
// declaration times, so each recovered war is backdated by the full grace
// duration: after a restart old wars are past their grace on the first tick.
func Migrate(f File, now time.Time, grace time.Duration) SaveV1 {
	if f.V1 != nil {
		return *f.V1
	}
	save := SaveV1{
		Version: Version,
		Wars:    map[string][]string{},
		Starts:  map[string]int64{},
	}
	backdated := now.Add(-grace).UnixMilli()
	for initiator, targets := range f.Legacy {
		list := make([]string, len(targets))
		copy(list, targets)
		save.Wars[initiator] = list
		for _, target := range targets {
			save.Starts[initiator+":"+target] = backdated
		}
	}
	return save
}

// Write emits the versioned format, via a temp file and rename so a crash
// mid-write never clobbers the previous save.
func Write(path string, save SaveV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(save, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Writer adapts a file path to the war store's Saver interface.
type Writer struct {
	Path string
}

func (w *Writer) SaveWars(save SaveV1) error {
	return Write(w.Path, save)
}
