package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/GriffinCanCode/scripthost/backend/internal/core/channel"
	"github.com/GriffinCanCode/scripthost/backend/internal/core/rpc"
	"github.com/dop251/goja"
	"github.com/google/uuid"
)

const deferredSource = `(function() {
	var d = {};
	d.promise = new Promise(function(resolve, reject) { d.resolve = resolve; d.reject = reject; });
	return d;
})`

// setupGlobals configures global objects and security
func (r *Runtime) setupGlobals() error {
	// Remove dangerous globals
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := r.vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	v, err := r.vm.RunString(deferredSource)
	if err != nil {
		return err
	}
	deferred, ok := goja.AssertFunction(v)
	if !ok {
		return fmt.Errorf("deferred helper is not callable")
	}
	r.deferred = deferred

	globals := map[string]func(goja.FunctionCall) goja.Value{
		"send":           r.jsSend,
		"receive":        r.jsReceive(false),
		"receiveMessage": r.jsReceive(true),
		"request":        r.jsRequest,
		"onRequest":      r.jsOnRequest,
		"isCanceled":     r.jsIsCanceled,
		"setTimeout":     r.jsSetTimeout,
		"clearTimeout":   r.jsClearTimeout,
	}
	for name, fn := range globals {
		if err := r.vm.Set(name, fn); err != nil {
			return err
		}
	}

	if r.config.EnableConsole {
		console := r.vm.NewObject()
		for _, level := range []string{"log", "warn", "error", "info", "debug"} {
			if err := console.Set(level, r.makeConsoleFunc(level)); err != nil {
				return err
			}
		}
		return r.vm.Set("console", console)
	}
	return nil
}

// makeConsoleFunc creates a console function
func (r *Runtime) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		r.addConsole(level, strings.Join(parts, " "))
		return goja.Undefined()
	}
}

// newPromise returns a pending promise and its settle functions. Must run
// on the loop.
func (r *Runtime) newPromise() (goja.Value, func(goja.Value), func(goja.Value)) {
	d, err := r.deferred(goja.Undefined())
	if err != nil {
		panic(r.vm.NewGoError(err))
	}
	obj := d.ToObject(r.vm)
	resolve, _ := goja.AssertFunction(obj.Get("resolve"))
	reject, _ := goja.AssertFunction(obj.Get("reject"))

	settle := func(fn goja.Callable) func(goja.Value) {
		return func(v goja.Value) {
			if _, err := fn(goja.Undefined(), v); err != nil {
				r.uncaught(r.scriptError(err))
			}
		}
	}
	return obj.Get("promise"), settle(resolve), settle(reject)
}

// jsSend implements send(payload, transfers?).
func (r *Runtime) jsSend(call goja.FunctionCall) goja.Value {
	payload, err := r.export(call.Argument(0))
	if err != nil {
		panic(r.vm.NewGoError(err))
	}
	handles := r.transfers(call.Argument(1))
	r.ch.Send(payload, handles...)
	return goja.Undefined()
}

// transfers converts a transfer list of ArrayBuffers or byte views into
// handles. The bytes are copied; the script keeps its buffers.
func (r *Runtime) transfers(v goja.Value) []channel.Handle {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	items, ok := v.Export().([]any)
	if !ok {
		panic(r.vm.NewTypeError("transfer list must be an array"))
	}

	handles := make([]channel.Handle, 0, len(items))
	for _, item := range items {
		var data []byte
		switch b := item.(type) {
		case goja.ArrayBuffer:
			data = bytes.Clone(b.Bytes())
		case []byte:
			data = bytes.Clone(b)
		default:
			panic(r.vm.NewTypeError("transfer list accepts ArrayBuffer or Uint8Array, got %T", item))
		}
		handles = append(handles, channel.Handle{ID: uuid.NewString(), Data: data})
	}
	return handles
}

// jsReceive implements receive() and receiveMessage(). The latter resolves
// with {data, transfers}.
func (r *Runtime) jsReceive(withTransfers bool) func(goja.FunctionCall) goja.Value {
	return func(goja.FunctionCall) goja.Value {
		promise, resolve, reject := r.newPromise()
		// Receives claim their turn in call order.
		prev, turn := r.recvTail, make(chan struct{})
		r.recvTail = turn
		go func() {
			defer close(turn)
			if prev != nil {
				<-prev
			}
			msg, err := r.ch.Receive(r.ctx)
			r.loop.submit(func() {
				if err != nil {
					reject(r.vm.NewGoError(err))
					return
				}
				if withTransfers {
					resolve(r.messageValue(msg))
					return
				}
				resolve(r.vm.ToValue(msg.Payload))
			})
		}()
		return promise
	}
}

func (r *Runtime) messageValue(msg channel.Message) goja.Value {
	obj := r.vm.NewObject()
	_ = obj.Set("data", msg.Payload)

	transfers := make([]any, len(msg.Transfers))
	for i, h := range msg.Transfers {
		t := r.vm.NewObject()
		_ = t.Set("id", h.ID)
		_ = t.Set("contentType", h.ContentType)
		_ = t.Set("buffer", r.vm.NewArrayBuffer(bytes.Clone(h.Data)))
		transfers[i] = t
	}
	_ = obj.Set("transfers", r.vm.NewArray(transfers...))
	return obj
}

// jsRequest implements request(payload).
func (r *Runtime) jsRequest(call goja.FunctionCall) goja.Value {
	payload, err := r.export(call.Argument(0))
	if err != nil {
		panic(r.vm.NewGoError(err))
	}

	promise, resolve, reject := r.newPromise()
	go func() {
		v, err := r.rpc.Call(r.ctx, payload)
		r.loop.submit(func() {
			if err != nil {
				reject(r.vm.NewGoError(err))
				return
			}
			resolve(r.vm.ToValue(v))
		})
	}()
	return promise
}

// jsOnRequest implements onRequest(fn). Passing null removes the handler.
func (r *Runtime) jsOnRequest(call goja.FunctionCall) goja.Value {
	arg := call.Argument(0)
	if goja.IsUndefined(arg) || goja.IsNull(arg) {
		r.rpc.RegisterHandler(nil)
		return goja.Undefined()
	}
	fn, ok := goja.AssertFunction(arg)
	if !ok {
		panic(r.vm.NewTypeError("onRequest: handler is not a function"))
	}
	r.rpc.RegisterHandler(r.scriptHandler(fn))
	return goja.Undefined()
}

// scriptHandler adapts a script function to an rpc.Handler. The function
// runs on the loop; the correlator only ever sees a Deferred.
func (r *Runtime) scriptHandler(fn goja.Callable) rpc.Handler {
	return func(_ context.Context, req rpc.Request) (rpc.Result, error) {
		done := make(chan rpc.Outcome, 1)
		settle := func(out rpc.Outcome) {
			select {
			case done <- out:
			default:
			}
		}

		ok := r.loop.submit(func() {
			arg := r.vm.NewObject()
			_ = arg.Set("id", req.ID)
			_ = arg.Set("payload", req.Payload)

			ret, err := fn(goja.Undefined(), arg)
			if err != nil {
				settle(rpc.Outcome{Err: r.scriptError(err)})
				return
			}
			r.await(ret,
				func(v goja.Value) {
					value, err := r.export(v)
					settle(rpc.Outcome{Value: value, Err: err})
				},
				func(reason goja.Value) { settle(rpc.Outcome{Err: r.rejection(reason)}) },
			)
		})
		if !ok {
			return nil, ErrRuntimeClosed
		}
		return rpc.Deferred{Done: done}, nil
	}
}

func (r *Runtime) jsIsCanceled(goja.FunctionCall) goja.Value {
	return r.vm.ToValue(r.Canceled())
}

// jsSetTimeout implements setTimeout(fn, ms, ...args). Callbacks run on
// the loop; a throwing callback faults the context.
func (r *Runtime) jsSetTimeout(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(r.vm.NewTypeError("setTimeout: callback is not a function"))
	}
	delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}
	var args []goja.Value
	if len(call.Arguments) > 2 {
		args = append(args, call.Arguments[2:]...)
	}

	r.timersMu.Lock()
	r.timerSeq++
	id := r.timerSeq
	r.timers[id] = time.AfterFunc(delay, func() {
		r.loop.submit(func() {
			if !r.takeTimer(id) {
				return
			}
			if _, err := fn(goja.Undefined(), args...); err != nil {
				r.uncaught(r.scriptError(err))
			}
		})
	})
	r.timersMu.Unlock()

	return r.vm.ToValue(id)
}

func (r *Runtime) jsClearTimeout(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).ToInteger()
	r.timersMu.Lock()
	if t, ok := r.timers[id]; ok {
		t.Stop()
		delete(r.timers, id)
	}
	r.timersMu.Unlock()
	return goja.Undefined()
}

// takeTimer removes a fired timer, reporting whether it was still armed.
func (r *Runtime) takeTimer(id int64) bool {
	r.timersMu.Lock()
	defer r.timersMu.Unlock()
	if _, ok := r.timers[id]; !ok {
		return false
	}
	delete(r.timers, id)
	return true
}
