package hostcall

import (
	"github.com/GriffinCanCode/scripthost/backend/internal/config"
	"github.com/GriffinCanCode/scripthost/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scripthost/backend/internal/sniff"
	"go.uber.org/zap"
)

// Standard builds a registry with every built-in provider
func Standard(cfg config.FetchConfig, detector *sniff.Detector, log *zap.Logger, metrics *monitoring.Metrics) (*Registry, error) {
	codec, err := NewCodec(cfg.MaxBytes)
	if err != nil {
		return nil, err
	}

	r := NewRegistry(log, metrics)
	providers := []Provider{
		NewCore(detector),
		NewFetch(cfg, log),
		NewHTML(),
		NewStats(),
		NewDigest(),
		codec,
	}
	for _, p := range providers {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}
