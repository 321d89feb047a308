package assets

import "context"

// Converter post-processes a stored upload. Implementations may
// transcode media into a servable format; Convert returns the path of
// the final file, which may be the input path when no work is needed.
// Progress is reported as integer percentages in [0,100].
type Converter interface {
	Convert(ctx context.Context, src, btype string, progress func(pct int)) (string, error)
}

// PassthroughConverter stores uploads unchanged.
type PassthroughConverter struct{}

func (PassthroughConverter) Convert(ctx context.Context, src, btype string, progress func(pct int)) (string, error) {
	if progress != nil {
		progress(100)
	}
	return src, nil
}
