package schema

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/jasonlryan/mha-vectorsync/internal/vectorsync"
)

// Dataset names one group of files that share a schema.
type Dataset struct {
	Label      string
	Files      []string
	SchemaName string
}

// RunDatasets validates every dataset, logging one event per file, and
// reports whether any file failed. Validators are compiled once per schema
// name. The error return covers schema compilation only; per-file problems
// are logged and counted.
func RunDatasets(schemasDir string, datasets []Dataset, logger vectorsync.EventLogger) (bool, error) {
	validators := make(map[string]*Validator)
	failed := false

	for _, dataset := range datasets {
		validator, ok := validators[dataset.SchemaName]
		if !ok {
			var err error
			validator, err = Load(filepath.Join(schemasDir, dataset.SchemaName))
			if err != nil {
				return false, err
			}
			validators[dataset.SchemaName] = validator
		}

		if len(dataset.Files) == 0 {
			logger.Event("dataset.skip", map[string]any{
				"label":  dataset.Label,
				"reason": "no_files",
			})
			continue
		}
		logger.Event("dataset.start", map[string]any{
			"label": dataset.Label,
			"count": len(dataset.Files),
		})
		for _, path := range dataset.Files {
			issues, err := validator.ValidateFile(path)
			if err != nil {
				failed = true
				logger.Event("validation.error", map[string]any{
					"label": dataset.Label,
					"file":  path,
					"error": err.Error(),
				})
				continue
			}
			if len(issues) > 0 {
				failed = true
				logger.Event("validation.fail", map[string]any{
					"label":  dataset.Label,
					"file":   path,
					"errors": issueStrings(issues),
				})
				continue
			}
			logger.Event("validation.pass", map[string]any{
				"label": dataset.Label,
				"file":  path,
			})
		}
	}
	return !failed, nil
}

// GatherJSONFiles lists the .json files in dir, sorted by name.
func GatherJSONFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func issueStrings(issues []Issue) []string {
	out := make([]string, len(issues))
	for i, issue := range issues {
		out[i] = issue.String()
	}
	return out
}
