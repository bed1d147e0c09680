package services

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/username/taxcore/src/security/validation"
)

// textProducerImpl accepts plain text and delimited uploads. Binary formats
// must be converted to text before they reach the pipeline.
type textProducerImpl struct {
	maxBytes int64
}

func NewTextProducer(maxBytes int64) TextProducer {
	return &textProducerImpl{maxBytes: maxBytes}
}

func (p *textProducerImpl) Produce(ctx context.Context, in UploadInput) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if in.Content == nil {
		return "", fmt.Errorf("%w: no content", ErrUnsupportedFile)
	}
	if in.ContentType != "" {
		if err := validation.ValidateClientContentType(in.ContentType); err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnsupportedFile, err)
		}
	}
	if _, err := validation.ValidateFileContentByMagicBytes(in.Content); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedFile, err)
	}

	r := io.Reader(in.Content)
	if p.maxBytes > 0 {
		r = io.LimitReader(in.Content, p.maxBytes+1)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read upload %s: %w", in.FileName, err)
	}
	if p.maxBytes > 0 && int64(len(raw)) > p.maxBytes {
		return "", fmt.Errorf("%w: %s exceeds the %s upload limit", ErrUnsupportedFile, in.FileName, humanize.Bytes(uint64(p.maxBytes)))
	}

	text := validation.StripUnprintable(string(raw))
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s contains no text", ErrUnsupportedFile, in.FileName)
	}
	return text, nil
}
