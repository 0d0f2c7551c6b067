package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dkeye/Setlist/internal/domain"
	"gopkg.in/yaml.v3"
)

type setlistFile struct {
	Setlists []domain.Setlist `yaml:"setlists"`
}

// DecodeSetlists reads one or more YAML documents, each holding either a
// single setlist or a `setlists:` list.
func DecodeSetlists(r io.Reader) ([]domain.Setlist, error) {
	dec := yaml.NewDecoder(r)
	var out []domain.Setlist
	for {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrBadPayload, err)
		}

		var file setlistFile
		if err := node.Decode(&file); err == nil && len(file.Setlists) > 0 {
			out = append(out, file.Setlists...)
			continue
		}
		var one domain.Setlist
		if err := node.Decode(&one); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrBadPayload, err)
		}
		if one.ID == "" {
			return nil, fmt.Errorf("%w: setlist document without id", domain.ErrBadPayload)
		}
		out = append(out, one)
	}
	return out, nil
}

// Import saves every setlist in r and returns how many were written.
func (d *DB) Import(ctx context.Context, r io.Reader) (int, error) {
	setlists, err := DecodeSetlists(r)
	if err != nil {
		return 0, err
	}
	for i, sl := range setlists {
		if err := d.SaveSetlist(ctx, sl); err != nil {
			return i, err
		}
	}
	return len(setlists), nil
}
