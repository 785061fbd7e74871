package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/dunamismax/staffcut/internal/domain"
)

// ObjectStorage is the slice of the storage client the object stages need.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	ListObjects(ctx context.Context, prefix string) ([]string, error)
	ReadObject(ctx context.Context, objectKey string) ([]byte, error)
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
}

// ObjectStoreSource treats Input as a directory-like prefix and lists only its
// direct children whose names end in the extension.
type ObjectStoreSource struct {
	Storage ObjectStorage
}

func (s ObjectStoreSource) List(ctx context.Context, req Request) ([]Item, error) {
	if s.Storage == nil {
		return nil, errors.New("storage client is required")
	}

	prefix := objectPrefix(req.Input)
	keys, err := s.Storage.ListObjects(ctx, prefix)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(keys))
	for _, key := range keys {
		rest := strings.TrimPrefix(key, prefix)
		if rest == "" || strings.Contains(rest, "/") {
			continue
		}
		if !strings.HasSuffix(rest, req.Options.Extension) {
			continue
		}
		items = append(items, Item{Name: rest, Key: key})
	}
	return items, nil
}

func (s ObjectStoreSource) Fetch(ctx context.Context, item Item) ([]byte, error) {
	if s.Storage == nil {
		return nil, errors.New("storage client is required")
	}
	return s.Storage.ReadObject(ctx, item.Key)
}

type ObjectStoreEmitter struct {
	Storage ObjectStorage
}

func (e ObjectStoreEmitter) Prepare(ctx context.Context, _ Request) error {
	if e.Storage == nil {
		return errors.New("storage client is required")
	}
	return e.Storage.EnsureBucket(ctx)
}

func (e ObjectStoreEmitter) Emit(ctx context.Context, req Request, name string, data []byte, format string, extent domain.Extent) (Output, error) {
	if e.Storage == nil {
		return Output{}, errors.New("storage client is required")
	}
	if name == "" || strings.Contains(name, "/") {
		return Output{}, fmt.Errorf("invalid output name %q", name)
	}

	objectKey := path.Join(strings.Trim(req.Output, "/"), name)
	if err := e.Storage.WriteObject(ctx, objectKey, data, contentTypeForFormat(format)); err != nil {
		return Output{}, err
	}

	return Output{
		Name:   name,
		Format: format,
		Path:   objectKey,
		Bytes:  len(data),
		Width:  extent.W,
		Height: extent.H,
	}, nil
}

func objectPrefix(input string) string {
	input = strings.Trim(strings.TrimSpace(input), "/")
	if input == "" {
		return ""
	}
	return input + "/"
}
