package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/insightloop/rfm-pipeline-workflow/processor"
)

// FSLedgerSourceAdapter walks a directory of CSV ledger files and runs the
// pipeline once per file, in lexical order. Files that don't end in .csv are
// skipped.
type FSLedgerSourceAdapter struct {
	basePath   string
	processors []processor.Processor
}

func NewFSLedgerSourceAdapter(config map[string]interface{}) (SourceAdapter, error) {
	basePath, ok := config["base_path"].(string)
	if !ok || basePath == "" {
		return nil, errors.New("base_path must be specified")
	}

	return &FSLedgerSourceAdapter{basePath: basePath}, nil
}

func (adapter *FSLedgerSourceAdapter) Subscribe(receiver processor.Processor) {
	adapter.processors = append(adapter.processors, receiver)
}

func (adapter *FSLedgerSourceAdapter) Run(ctx context.Context) error {
	entries, err := os.ReadDir(adapter.basePath)
	if err != nil {
		return errors.Wrapf(err, "error reading ledger directory %s", adapter.basePath)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	if len(files) == 0 {
		return errors.Errorf("no CSV ledger files in %s", adapter.basePath)
	}

	for _, name := range files {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		path := filepath.Join(adapter.basePath, name)
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrapf(err, "error opening ledger file %s", path)
		}

		ledger, err := ParseLedgerCSV(f)
		f.Close()
		if err != nil {
			return errors.Wrapf(err, "error parsing %s", name)
		}

		log.Printf("Processing ledger file %s (%d transactions)", name, len(ledger))

		if err := forwardLedger(ctx, ledger, &processor.LedgerSourceMetadata{
			SourceType: "FS",
			FilePath:   path,
			FileName:   name,
			RowCount:   len(ledger),
		}, adapter.processors); err != nil {
			return err
		}
	}

	return nil
}
