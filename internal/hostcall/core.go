package hostcall

import (
	"context"
	"fmt"
	"time"

	"github.com/GriffinCanCode/scripthost/backend/internal/sniff"
)

// Core provides echo, now and sniff
type Core struct {
	detector *sniff.Detector
	now      func() time.Time
}

// NewCore creates the core provider
func NewCore(detector *sniff.Detector) *Core {
	return &Core{detector: detector, now: time.Now}
}

// Methods returns core method definitions
func (c *Core) Methods() []Method {
	return []Method{
		{
			Name:        "echo",
			Description: "Return the data parameter unchanged",
			Parameters: []Parameter{
				{Name: "data", Type: "any", Description: "Value to echo", Required: false},
			},
			Returns: "any",
		},
		{
			Name:        "now",
			Description: "Current host time",
			Returns:     "object",
		},
		{
			Name:        "sniff",
			Description: "Detect the content type of binary data",
			Parameters: []Parameter{
				{Name: "data", Type: "bytes", Description: "Bytes or base64 string", Required: true},
			},
			Returns: "object",
		},
	}
}

// Execute routes to the core method
func (c *Core) Execute(_ context.Context, method string, params Params) (any, error) {
	switch method {
	case "echo":
		return params["data"], nil
	case "now":
		t := c.now().UTC()
		return map[string]any{
			"iso":  t.Format(time.RFC3339Nano),
			"unix": t.UnixMilli(),
		}, nil
	case "sniff":
		data, err := params.Bytes("data")
		if err != nil {
			return nil, err
		}
		m := c.detector.Detect(data)
		return map[string]any{
			"name":    m.Name,
			"mime":    m.MIME,
			"ext":     m.Ext,
			"charset": m.Charset,
			"source":  m.Source,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
}
