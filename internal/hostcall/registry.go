package hostcall

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/GriffinCanCode/scripthost/backend/internal/infrastructure/monitoring"
	"go.uber.org/zap"
)

var (
	ErrUnknownMethod = errors.New("unknown method")
	ErrInvalidParams = errors.New("invalid params")
	ErrMethodExists  = errors.New("method already registered")
	ErrNotPermitted  = errors.New("not permitted")
)

// Parameter describes one method parameter
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Method describes a callable host method
type Method struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Returns     string      `json:"returns"`
}

// Provider contributes a group of methods
type Provider interface {
	Methods() []Method
	Execute(ctx context.Context, method string, params Params) (any, error)
}

// Registry maps method names to providers
type Registry struct {
	methods sync.Map // name -> entry
	log     *zap.Logger
	metrics *monitoring.Metrics
}

type entry struct {
	def      Method
	provider Provider
}

// NewRegistry creates an empty registry. metrics may be nil.
func NewRegistry(log *zap.Logger, metrics *monitoring.Metrics) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{log: log.Named("hostcall"), metrics: metrics}
}

// Register adds every method of provider. Nothing is registered if any
// name is already taken.
func (r *Registry) Register(provider Provider) error {
	defs := provider.Methods()
	for _, def := range defs {
		if def.Name == "" {
			return fmt.Errorf("%w: empty method name", ErrInvalidParams)
		}
		if _, ok := r.methods.Load(def.Name); ok {
			return fmt.Errorf("%w: %s", ErrMethodExists, def.Name)
		}
	}
	for _, def := range defs {
		r.methods.Store(def.Name, entry{def: def, provider: provider})
	}
	return nil
}

// Get returns the definition of a method
func (r *Registry) Get(name string) (Method, bool) {
	val, ok := r.methods.Load(name)
	if !ok {
		return Method{}, false
	}
	return val.(entry).def, true
}

// List returns all methods sorted by name
func (r *Registry) List() []Method {
	var out []Method
	r.methods.Range(func(_, value any) bool {
		out = append(out, value.(entry).def)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Dispatch services one request payload
func (r *Registry) Dispatch(ctx context.Context, payload any) (any, error) {
	params, ok := asParams(payload)
	if !ok {
		return nil, fmt.Errorf("%w: payload must be an object with a method", ErrInvalidParams)
	}
	name, _ := params["method"].(string)
	if name == "" {
		return nil, fmt.Errorf("%w: method is required", ErrInvalidParams)
	}

	val, ok := r.methods.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, name)
	}
	e := val.(entry)

	if err := validate(e.def, params); err != nil {
		return nil, err
	}

	var timer *monitoring.Timer
	if r.metrics != nil {
		timer = monitoring.NewTimer(r.metrics, name)
	}
	result, err := e.provider.Execute(ctx, name, params)
	if timer != nil {
		timer.Stop(err)
	}
	if err != nil {
		r.log.Debug("host method failed", zap.String("method", name), zap.Error(err))
		return nil, err
	}
	return result, nil
}

func validate(def Method, params Params) error {
	for _, p := range def.Parameters {
		if !p.Required {
			continue
		}
		if v, ok := params[p.Name]; !ok || v == nil {
			return fmt.Errorf("%w: %s requires %s", ErrInvalidParams, def.Name, p.Name)
		}
	}
	return nil
}
