package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dunamismax/staffcut/internal/domain"
)

var ErrOutputMissing = errors.New("output directory does not exist")

// LocalDirSource lists Input/*<extension>, the same pattern a shell glob
// would use; the extension is matched as a plain suffix.
type LocalDirSource struct{}

func (LocalDirSource) List(ctx context.Context, req Request) ([]Item, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	pattern := filepath.Join(req.Input, "*"+req.Options.Extension)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}

	items := make([]Item, 0, len(matches))
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", match, err)
		}
		if info.IsDir() {
			continue
		}
		items = append(items, Item{Name: filepath.Base(match), Key: match})
	}
	return items, nil
}

func (LocalDirSource) Fetch(ctx context.Context, item Item) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(item.Key)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", item.Key, err)
	}
	return data, nil
}

// LocalDirEmitter writes into an existing Output directory, overwriting files.
type LocalDirEmitter struct{}

func (LocalDirEmitter) Prepare(_ context.Context, req Request) error {
	info, err := os.Stat(req.Output)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrOutputMissing, req.Output)
		}
		return fmt.Errorf("stat output directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrOutputMissing, req.Output)
	}
	return nil
}

func (LocalDirEmitter) Emit(_ context.Context, req Request, name string, data []byte, format string, extent domain.Extent) (Output, error) {
	if name == "" || name != filepath.Base(name) {
		return Output{}, fmt.Errorf("invalid output name %q", name)
	}

	fullPath := filepath.Join(req.Output, name)
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return Output{}, fmt.Errorf("write output file: %w", err)
	}

	return Output{
		Name:   name,
		Format: format,
		Path:   fullPath,
		Bytes:  len(data),
		Width:  extent.W,
		Height: extent.H,
	}, nil
}
