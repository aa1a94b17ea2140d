// Package scanner implements the Storage Scanner (C12): a recursive
// directory walk that aggregates byte totals and collects candidate
// document paths for ingestion.
package scanner

import (
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// progressEvery matches §4.12's progress-logging cadence.
const progressEvery = 1000

// DirEntry is one directory's aggregate byte total.
type DirEntry struct {
	Path       string
	TotalBytes int64
}

// DirectoryDocuments groups candidate document paths by their immediate
// parent directory.
type DirectoryDocuments struct {
	Directory string
	Paths     []string
}

// Result is a completed scan, with deterministic ordering: Directories
// sorted by descending total size (ties broken by ascending path), and
// Documents sorted by ascending directory with each Paths slice sorted
// ascending.
type Result struct {
	ScanID        string
	Directories   []DirEntry
	CategoryBytes map[string]int64
	Documents     []DirectoryDocuments
}

// Scanner walks a root directory, skipping named directories entirely and
// classifying files by extension.
type Scanner struct {
	skipDirs           map[string]bool
	documentExtensions map[string]bool
	log                zerolog.Logger
}

// New constructs a Scanner. skipDirNames are directory basenames (e.g.
// "AppData", "node_modules", ".git") excluded from the walk entirely;
// documentExtensions (without the leading dot, e.g. "pdf") are the
// candidate-document whitelist.
func New(skipDirNames, documentExtensions []string, log zerolog.Logger) *Scanner {
	skip := make(map[string]bool, len(skipDirNames))
	for _, d := range skipDirNames {
		skip[d] = true
	}
	docs := make(map[string]bool, len(documentExtensions))
	for _, e := range documentExtensions {
		docs[strings.ToLower(strings.TrimPrefix(e, "."))] = true
	}
	return &Scanner{
		skipDirs:           skip,
		documentExtensions: docs,
		log:                log.With().Str("component", "scanner").Logger(),
	}
}

// Scan walks root, aggregating byte totals per directory and per extension
// category, and collecting candidate document paths. A path that fails with
// a permission error is logged and skipped; any other walk or stat error
// aborts the scan.
func (s *Scanner) Scan(root string) (Result, error) {
	scanID := uuid.NewString()
	log := s.log.With().Str("scan_id", scanID).Logger()

	dirTotals := make(map[string]int64)
	categoryTotals := make(map[string]int64)
	docsByDir := make(map[string][]string)

	var filesSeen int

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrPermission) {
				log.Warn().Str("path", path).Msg("permission denied, skipping")
				return nil
			}
			return err
		}

		if d.IsDir() {
			if path != root && s.skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrPermission) {
				log.Warn().Str("path", path).Msg("permission denied, skipping")
				return nil
			}
			return err
		}

		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
		category := ext
		if category == "" {
			category = "none"
		}
		categoryTotals[category] += info.Size()
		dirTotals[filepath.Dir(path)] += info.Size()

		if s.documentExtensions[ext] {
			parent := filepath.Dir(path)
			docsByDir[parent] = append(docsByDir[parent], path)
		}

		filesSeen++
		if filesSeen%progressEvery == 0 {
			log.Info().Int("files_scanned", filesSeen).Msg("scan in progress")
		}

		return nil
	})
	if err != nil {
		return Result{}, err
	}

	return Result{
		ScanID:        scanID,
		Directories:   sortedDirEntries(dirTotals),
		CategoryBytes: categoryTotals,
		Documents:     sortedDocuments(docsByDir),
	}, nil
}

func sortedDirEntries(totals map[string]int64) []DirEntry {
	entries := make([]DirEntry, 0, len(totals))
	for path, total := range totals {
		entries = append(entries, DirEntry{Path: path, TotalBytes: total})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalBytes != entries[j].TotalBytes {
			return entries[i].TotalBytes > entries[j].TotalBytes
		}
		return entries[i].Path < entries[j].Path
	})
	return entries
}

func sortedDocuments(byDir map[string][]string) []DirectoryDocuments {
	result := make([]DirectoryDocuments, 0, len(byDir))
	for dir, paths := range byDir {
		sorted := append([]string(nil), paths...)
		sort.Strings(sorted)
		result = append(result, DirectoryDocuments{Directory: dir, Paths: sorted})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Directory < result[j].Directory
	})
	return result
}
