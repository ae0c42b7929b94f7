package render

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"scanwatch/internal/services"
)

// Extractor renders document pages to PNG images by shelling out to
// pdftoppm, one invocation per page so a bad page never blocks the rest.
type Extractor struct {
	binary string
	run    runFunc
}

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// ExtractorOption customizes an Extractor.
type ExtractorOption func(*Extractor)

// WithRunner overrides command execution, for tests.
func WithRunner(run runFunc) ExtractorOption {
	return func(e *Extractor) {
		if run != nil {
			e.run = run
		}
	}
}

// NewExtractor constructs an Extractor using the given pdftoppm binary name.
func NewExtractor(binary string, opts ...ExtractorOption) *Extractor {
	e := &Extractor{binary: binary, run: execRun}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractPages renders up to maxPages pages of path into workDir and returns
// the PNG bytes in page order. Fewer images than requested is not an error;
// a document yielding zero pages is reported as unreadable. A failure on one
// page is skipped so pages that succeeded are still returned.
func (e *Extractor) ExtractPages(ctx context.Context, path, workDir string, maxPages int) ([][]byte, error) {
	if maxPages <= 0 {
		maxPages = 1
	}

	var pages [][]byte
	var lastFailure error
	for page := 1; page <= maxPages; page++ {
		data, err := e.extractOne(ctx, path, workDir, page)
		if err != nil {
			if ctx.Err() != nil {
				return pages, ctx.Err()
			}
			// Most likely the document simply has fewer pages. Keep what
			// we have; remember the failure in case nothing rendered.
			lastFailure = err
			continue
		}
		pages = append(pages, data)
	}

	if len(pages) == 0 {
		return nil, services.Wrap(services.ErrUnreadable, "extract", "render",
			fmt.Sprintf("no pages rendered from %s", filepath.Base(path)), lastFailure)
	}
	return pages, nil
}

func (e *Extractor) extractOne(ctx context.Context, path, workDir string, page int) ([]byte, error) {
	prefix := filepath.Join(workDir, fmt.Sprintf("page-%d", page))
	args := []string{
		"-png",
		"-r", "150",
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		path,
		prefix,
	}
	output, err := e.run(ctx, e.binary, args...)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm page %d: %w: %s", page, err, strings.TrimSpace(string(output)))
	}

	rendered, err := findRendered(prefix)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm page %d: %w", page, err)
	}
	data, err := os.ReadFile(rendered)
	if err != nil {
		return nil, fmt.Errorf("read rendered page %d: %w", page, err)
	}
	return data, nil
}

// findRendered locates the file pdftoppm produced for a prefix. The page
// number suffix is zero-padded based on the document's page count, so the
// exact name is not predictable up front.
func findRendered(prefix string) (string, error) {
	matches, err := filepath.Glob(prefix + "*.png")
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no output produced for %s", filepath.Base(prefix))
	}
	return matches[0], nil
}
