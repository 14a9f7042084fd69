package reporting

import (
	"fmt"
	"os"
	"path/filepath"
)

// Report file names.
const (
	FileMarkdown       = "ECONOMY_REPORT.md"
	FileFlowsCSV       = "flows.csv"
	FileTiersCSV       = "tiers.csv"
	FileProposalsCSV   = "proposals.csv"
	FileAllocationsCSV = "allocations.csv"
)

// WriteFiles renders r into dir and returns the written paths.
func WriteFiles(dir string, r *Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	files := []struct {
		name    string
		content string
	}{
		{FileMarkdown, RenderMarkdown(r)},
		{FileFlowsCSV, RenderFlowsCSV(r)},
		{FileTiersCSV, RenderTiersCSV(r)},
		{FileProposalsCSV, RenderProposalsCSV(r)},
		{FileAllocationsCSV, RenderAllocationsCSV(r)},
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, []byte(f.content), 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", f.name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
