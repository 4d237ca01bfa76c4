package hostcall

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// ErrTooLarge is returned when decompressed output exceeds the limit
var ErrTooLarge = errors.New("output exceeds limit")

// Codec compresses and decompresses binary data
type Codec struct {
	limit int64
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

// NewCodec creates the codec provider. limit bounds decompressed output.
func NewCodec(limit int64) (*Codec, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(limit)))
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Codec{limit: limit, enc: enc, dec: dec}, nil
}

// Close releases the zstd decoder
func (c *Codec) Close() {
	c.dec.Close()
}

// Methods returns codec method definitions
func (c *Codec) Methods() []Method {
	params := []Parameter{
		{Name: "data", Type: "bytes", Description: "Bytes or base64 string", Required: true},
		{Name: "format", Type: "string", Description: "gzip (default) or zstd", Required: false},
	}
	return []Method{
		{
			Name:        "codec.compress",
			Description: "Compress data; returns base64",
			Parameters:  params,
			Returns:     "object",
		},
		{
			Name:        "codec.decompress",
			Description: "Decompress data; returns base64 or text",
			Parameters: append(params, Parameter{
				Name: "as", Type: "string", Description: "base64 (default) or text", Required: false,
			}),
			Returns: "object",
		},
	}
}

// Execute routes to the codec method
func (c *Codec) Execute(_ context.Context, method string, params Params) (any, error) {
	data, err := params.Bytes("data")
	if err != nil {
		return nil, err
	}
	format := params.StringOr("format", "gzip")
	if format != "gzip" && format != "zstd" {
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidParams, format)
	}

	switch method {
	case "codec.compress":
		out, err := c.compress(format, data)
		if err != nil {
			return nil, err
		}
		return map[string]any{"data": encode(out), "size": len(out)}, nil
	case "codec.decompress":
		out, err := c.decompress(format, data)
		if err != nil {
			return nil, err
		}
		result := map[string]any{"size": len(out)}
		if params.StringOr("as", "base64") == "text" {
			result["text"] = string(out)
		} else {
			result["data"] = encode(out)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
}

func (c *Codec) compress(format string, data []byte) ([]byte, error) {
	if format == "zstd" {
		return c.enc.EncodeAll(data, nil), nil
	}
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Codec) decompress(format string, data []byte) ([]byte, error) {
	if format == "zstd" {
		out, err := c.dec.DecodeAll(data, nil)
		if err != nil {
			if errors.Is(err, zstd.ErrDecoderSizeExceeded) {
				return nil, ErrTooLarge
			}
			return nil, fmt.Errorf("zstd: %w", err)
		}
		if int64(len(out)) > c.limit {
			return nil, ErrTooLarge
		}
		return out, nil
	}

	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(io.LimitReader(r, c.limit+1))
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	if int64(len(out)) > c.limit {
		return nil, ErrTooLarge
	}
	return out, nil
}
