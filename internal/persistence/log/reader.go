package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"warfront.gg/internal/sim/engine"
)

// ReadEventsSince replays the event log directory and returns every event
// with a sequence number greater than sinceSeq, in sequence order. Hourly
// segment names sort chronologically, so file-name order is replay order.
// A truncated tail (crash mid-write) ends the scan without error.
func ReadEventsSince(dataDir string, sinceSeq uint64) ([]engine.TerritorialEvent, error) {
	dir := filepath.Join(dataDir, "events")
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []string
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl.zst") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	var out []engine.TerritorialEvent
	for _, path := range files {
		evs, err := readSegment(path, sinceSeq)
		if err != nil {
			return nil, err
		}
		out = append(out, evs...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func readSegment(path string, sinceSeq uint64) ([]engine.TerritorialEvent, error) {
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

	var out []engine.TerritorialEvent
	br := bufio.NewReaderSize(dec, 128*1024)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			var ev engine.TerritorialEvent
			if jerr := json.Unmarshal(line, &ev); jerr == nil && ev.Seq > sinceSeq {
				out = append(out, ev)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return out, nil
			}
			// Unfinished zstd frame from an interrupted writer.
			return out, nil
		}
	}
}
