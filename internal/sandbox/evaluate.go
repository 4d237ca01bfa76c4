package sandbox

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/GriffinCanCode/scripthost/backend/internal/core/fault"
	"github.com/GriffinCanCode/scripthost/backend/internal/core/wire"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

const (
	scaffoldHead = "(async function() {\n"
	scaffoldTail = "\n})"
)

// LineOffset is the number of lines the scaffold adds ahead of the
// caller's source.
const LineOffset = 1

// Evaluate runs source as the context's single unit of work. The unit id
// names the compiled program in traces and tags the fault, if any. The
// returned CancelFunc aborts cooperatively: responses stop, the evaluation
// settles with *CanceledError and later failures are not reported.
func (r *Runtime) Evaluate(id, source string) (*Evaluation, CancelFunc) {
	ev := newEvaluation(id)
	cancel := func(reason ...string) { r.abort(ev, strings.Join(reason, " ")) }

	r.mu.Lock()
	switch {
	case r.closed:
		r.mu.Unlock()
		ev.settle(nil, ErrRuntimeClosed)
		return ev, cancel
	case r.eval != nil:
		r.mu.Unlock()
		ev.settle(nil, ErrAlreadyEvaluated)
		return ev, cancel
	}
	r.eval = ev
	r.mu.Unlock()

	r.faults.Bind(id)
	if !r.loop.submit(func() { r.run(ev, source) }) {
		ev.settle(nil, ErrRuntimeClosed)
	}
	return ev, cancel
}

// run executes on the loop. Startup completes when the scaffold's
// synchronous part returns, however it returns.
func (r *Runtime) run(ev *Evaluation, source string) {
	defer r.markInitialized()
	defer func() {
		if p := recover(); p != nil {
			r.fail(ev, fault.NewPanicError(p))
		}
	}()

	prg, err := goja.Compile(ev.ID, scaffoldHead+source+scaffoldTail, false)
	if err != nil {
		r.fail(ev, &ScriptError{Message: err.Error(), cause: err})
		return
	}
	v, err := r.vm.RunProgram(prg)
	if err != nil {
		r.fail(ev, r.scriptError(err))
		return
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		r.fail(ev, errors.New("scaffold did not produce a function"))
		return
	}

	ret, err := fn(goja.Undefined())
	if err != nil {
		r.fail(ev, r.scriptError(err))
		return
	}

	r.await(ret,
		func(v goja.Value) { r.succeed(ev, v) },
		func(reason goja.Value) { r.fail(ev, r.rejection(reason)) },
	)
}

func (r *Runtime) succeed(ev *Evaluation, v goja.Value) {
	if r.quiesced() {
		return
	}
	value, err := r.export(v)
	if err != nil {
		r.fail(ev, fmt.Errorf("failed to export result: %w", err))
		return
	}
	r.ch.Send(wire.Result{ID: ev.ID, Data: value})
	ev.settle(value, nil)
}

func (r *Runtime) fail(ev *Evaluation, err error) {
	if r.quiesced() {
		r.log.Debug("evaluation failure after cancel suppressed", zap.Error(err))
		return
	}
	r.faults.Report(err)
	ev.settle(nil, err)
}

// abort is the cooperative cancel path.
func (r *Runtime) abort(ev *Evaluation, reason string) {
	r.mu.Lock()
	if r.canceled || r.closed {
		r.mu.Unlock()
		return
	}
	r.canceled = true
	r.mu.Unlock()

	r.rpc.Shutdown()
	ev.settle(nil, &CanceledError{Reason: reason})
	r.log.Info("evaluation canceled", zap.String("unit_id", ev.ID), zap.String("reason", reason))
}

// await calls onOK or onErr once v settles. Non-promise values settle
// immediately. Must run on the loop.
func (r *Runtime) await(v goja.Value, onOK, onErr func(goja.Value)) {
	obj, ok := v.(*goja.Object)
	if !ok {
		onOK(v)
		return
	}
	p, ok := obj.Export().(*goja.Promise)
	if !ok {
		onOK(v)
		return
	}

	switch p.State() {
	case goja.PromiseStateFulfilled:
		onOK(p.Result())
		return
	case goja.PromiseStateRejected:
		onErr(p.Result())
		return
	}

	then, ok := goja.AssertFunction(obj.Get("then"))
	if !ok {
		onErr(r.vm.ToValue("promise has no then"))
		return
	}
	_, err := then(obj,
		r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			onOK(call.Argument(0))
			return goja.Undefined()
		}),
		r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			onErr(call.Argument(0))
			return goja.Undefined()
		}),
	)
	if err != nil {
		onErr(r.vm.ToValue(err.Error()))
	}
}

// export converts a VM value to a Go value.
func (r *Runtime) export(v goja.Value) (out any, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = nil, fault.NewPanicError(p)
		}
	}()
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	return v.Export(), nil
}

// scriptError converts an error returned by the VM.
func (r *Runtime) scriptError(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			return cause
		}
		return &ScriptError{Message: interrupted.Error(), Stack: interrupted.String(), cause: err}
	}

	var ex *goja.Exception
	if errors.As(err, &ex) {
		msg := ex.Error()
		if val := ex.Value(); val != nil {
			msg = val.String()
		}
		return &ScriptError{Message: msg, Stack: ex.String(), cause: err}
	}
	return &ScriptError{Message: err.Error(), cause: err}
}

// rejection converts a promise rejection reason.
func (r *Runtime) rejection(reason goja.Value) error {
	if reason == nil || goja.IsUndefined(reason) {
		return &ScriptError{Message: "promise rejected with undefined"}
	}
	se := &ScriptError{Message: reason.String()}
	if obj, ok := reason.(*goja.Object); ok {
		if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) {
			se.Stack = stack.String()
		}
	}
	return se
}

// TranslateTrace rewrites positions of the unit named id in trace so line
// numbers refer to the caller's source.
func TranslateTrace(trace, id string) string {
	if trace == "" || id == "" {
		return trace
	}
	re := regexp.MustCompile(regexp.QuoteMeta(id) + `:(\d+):(\d+)`)
	return re.ReplaceAllStringFunc(trace, func(m string) string {
		parts := re.FindStringSubmatch(m)
		line, err := strconv.Atoi(parts[1])
		if err != nil || line <= LineOffset {
			return m
		}
		return fmt.Sprintf("%s:%d:%s", id, line-LineOffset, parts[2])
	})
}
