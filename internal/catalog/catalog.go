// Package catalog reads finalized recordings back from an output tree.
package catalog

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"imgacquisition/internal/frame"
	"imgacquisition/internal/model"
)

const (
	videoExt      = ".mp4"
	timestampsExt = ".txt"
	separator     = "--"
)

// ParseName splits "<start>--<end>.mp4" into its two UTC timestamps.
func ParseName(filename string) (start, end time.Time, err error) {
	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	parts := strings.Split(name, separator)
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid recording name: %s", filename)
	}

	start, err = time.Parse(frame.TimestampLayout, parts[0])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("failed to parse start: %w", err)
	}
	end, err = time.Parse(frame.TimestampLayout, parts[1])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("failed to parse end: %w", err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("recording %s ends before it starts", filename)
	}
	return start, end, nil
}

// Skipped is a file Scan could not turn into a recording.
type Skipped struct {
	Path   string
	Reason error
}

// Scan walks <outDir>/<stream>/ and returns every complete file pair,
// ordered by stream and start time.
func Scan(outDir string) ([]model.Recording, []Skipped, error) {
	streams, err := os.ReadDir(outDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	var recs []model.Recording
	var skipped []Skipped
	for _, s := range streams {
		if !s.IsDir() {
			continue
		}
		dir := filepath.Join(outDir, s.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			skipped = append(skipped, Skipped{Path: dir, Reason: err})
			continue
		}

		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != videoExt {
				continue
			}
			video := filepath.Join(dir, f.Name())
			rec, err := load(s.Name(), video)
			if err != nil {
				skipped = append(skipped, Skipped{Path: video, Reason: err})
				continue
			}
			recs = append(recs, rec)
		}
	}

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].StreamID != recs[j].StreamID {
			return recs[i].StreamID < recs[j].StreamID
		}
		return recs[i].Start.Before(recs[j].Start)
	})
	return recs, skipped, nil
}

func load(streamID, video string) (model.Recording, error) {
	start, end, err := ParseName(video)
	if err != nil {
		return model.Recording{}, err
	}

	info, err := os.Stat(video)
	if err != nil {
		return model.Recording{}, err
	}

	stamps := strings.TrimSuffix(video, videoExt) + timestampsExt
	frames, err := countLines(stamps)
	if err != nil {
		return model.Recording{}, fmt.Errorf("timestamp log: %w", err)
	}

	return model.Recording{
		StreamID:       streamID,
		Start:          start,
		End:            end,
		Frames:         frames,
		VideoPath:      video,
		TimestampsPath: stamps,
		VideoSize:      info.Size(),
	}, nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) > 0 {
			n++
		}
	}
	return n, sc.Err()
}
