package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chazu/weft/compiler"
	"github.com/chazu/weft/vm"
)

// Runner procedure names. Requests and responses are google.protobuf.Struct
// messages, so the service needs no generated code.
const (
	RunnerServiceName = "weft.v1.Runner"
	RunProcedure      = "/" + RunnerServiceName + "/Run"
	CheckProcedure    = "/" + RunnerServiceName + "/Check"
)

// errSourceRequired is reported as an invalid-argument status.
var errSourceRequired = errors.New("source is required")

// Runner compiles and runs Weft source for remote callers.
//
// Request:  {"source": string}
//
// Run response: {"ok", "result", "type", "display", "output", "cached"}
// on success, {"ok": false, "diagnostics"} on compile failure,
// {"ok": false, "error", "line"} on a runtime fault.
//
// Check response: {"ok", "diagnostics"}.
type Runner struct {
	exec *Executor
}

// NewRunner creates a Runner whose requests run on exec.
func NewRunner(exec *Executor) *Runner {
	return &Runner{exec: exec}
}

func sourceOf(req *structpb.Struct) (string, error) {
	if req == nil {
		return "", errSourceRequired
	}
	source := req.GetFields()["source"].GetStringValue()
	if source == "" {
		return "", errSourceRequired
	}
	return source, nil
}

// Run compiles and executes the request's source.
func (r *Runner) Run(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	source, err := sourceOf(req)
	if err != nil {
		return nil, err
	}

	return Submit(ctx, r.exec, func(e *Engine) (*structpb.Struct, error) {
		var out bytes.Buffer
		value, cached, err := e.Run(ctx, source, &out)
		return runResponse(value, cached, out.String(), err), nil
	})
}

// Check compiles the request's source and reports its diagnostics.
func (r *Runner) Check(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	source, err := sourceOf(req)
	if err != nil {
		return nil, err
	}

	return Submit(ctx, r.exec, func(e *Engine) (*structpb.Struct, error) {
		errs := e.Check(source)
		return &structpb.Struct{Fields: map[string]*structpb.Value{
			"ok":          structpb.NewBoolValue(len(errs) == 0),
			"diagnostics": diagnosticsValue(errs),
		}}, nil
	})
}

func runResponse(value *vm.Variable, cached bool, output string, err error) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"output": structpb.NewStringValue(output),
	}

	var list compiler.ErrorList
	var rtErr *vm.RuntimeError
	switch {
	case errors.As(err, &list):
		fields["ok"] = structpb.NewBoolValue(false)
		fields["diagnostics"] = diagnosticsValue(list)
	case errors.As(err, &rtErr):
		fields["ok"] = structpb.NewBoolValue(false)
		fields["error"] = structpb.NewStringValue(rtErr.Error())
		fields["line"] = structpb.NewNumberValue(float64(rtErr.Line))
	case err != nil:
		fields["ok"] = structpb.NewBoolValue(false)
		fields["error"] = structpb.NewStringValue(err.Error())
	default:
		fields["ok"] = structpb.NewBoolValue(true)
		fields["result"] = variableValue(value)
		fields["type"] = structpb.NewStringValue(value.Type().String())
		fields["display"] = structpb.NewStringValue(value.String())
		fields["cached"] = structpb.NewBoolValue(cached)
	}
	return &structpb.Struct{Fields: fields}
}

// variableValue converts a Weft value. Integers become numbers, so values
// beyond 2^53 lose precision; "display" carries the exact text.
func variableValue(v *vm.Variable) *structpb.Value {
	switch v.Type() {
	case vm.TypeList:
		items := v.List()
		values := make([]*structpb.Value, len(items))
		for i, item := range items {
			values[i] = variableValue(item)
		}
		return structpb.NewListValue(&structpb.ListValue{Values: values})
	case vm.TypeString:
		return structpb.NewStringValue(v.String())
	case vm.TypeFloat:
		return structpb.NewNumberValue(v.ToFloat())
	default:
		return structpb.NewNumberValue(float64(v.ToInteger()))
	}
}

func diagnosticsValue(errs compiler.ErrorList) *structpb.Value {
	values := make([]*structpb.Value, len(errs))
	for i, e := range errs {
		values[i] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"level":   structpb.NewStringValue(e.Level.String()),
			"code":    structpb.NewNumberValue(float64(1000 + int(e.Code))),
			"line":    structpb.NewNumberValue(float64(e.Line)),
			"message": structpb.NewStringValue(e.Description),
			"text":    structpb.NewStringValue(e.String()),
		}})
	}
	return structpb.NewListValue(&structpb.ListValue{Values: values})
}

// ---------------------------------------------------------------------------
// Connect handlers
// ---------------------------------------------------------------------------

type unaryFunc func(context.Context, *structpb.Struct) (*structpb.Struct, error)

func connectUnary(fn unaryFunc) func(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return func(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
		res, err := fn(ctx, req.Msg)
		switch {
		case errors.Is(err, errSourceRequired):
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		case errors.Is(err, ErrStopped):
			return nil, connect.NewError(connect.CodeUnavailable, err)
		case errors.Is(err, context.Canceled):
			return nil, connect.NewError(connect.CodeCanceled, err)
		case errors.Is(err, context.DeadlineExceeded):
			return nil, connect.NewError(connect.CodeDeadlineExceeded, err)
		case err != nil:
			return nil, connect.NewError(connect.CodeInternal, err)
		}
		return connect.NewResponse(res), nil
	}
}

// NewRunnerHandler returns the path prefix and handler serving the Runner
// over the Connect, gRPC and gRPC-Web protocols.
func NewRunnerHandler(r *Runner, opts ...connect.HandlerOption) (string, http.Handler) {
	run := connect.NewUnaryHandler(RunProcedure, connectUnary(r.Run), opts...)
	check := connect.NewUnaryHandler(CheckProcedure, connectUnary(r.Check), opts...)
	return "/" + RunnerServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case RunProcedure:
			run.ServeHTTP(w, req)
		case CheckProcedure:
			check.ServeHTTP(w, req)
		default:
			http.NotFound(w, req)
		}
	})
}

// RunnerClient calls a Runner over Connect.
type RunnerClient struct {
	run   *connect.Client[structpb.Struct, structpb.Struct]
	check *connect.Client[structpb.Struct, structpb.Struct]
}

// NewRunnerClient creates a client for the Runner at baseURL.
func NewRunnerClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *RunnerClient {
	return &RunnerClient{
		run:   connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+RunProcedure, opts...),
		check: connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+CheckProcedure, opts...),
	}
}

func sourceRequest(source string) *connect.Request[structpb.Struct] {
	return connect.NewRequest(&structpb.Struct{Fields: map[string]*structpb.Value{
		"source": structpb.NewStringValue(source),
	}})
}

// Run sends source to the Run procedure.
func (c *RunnerClient) Run(ctx context.Context, source string) (*structpb.Struct, error) {
	res, err := c.run.CallUnary(ctx, sourceRequest(source))
	if err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	return res.Msg, nil
}

// Check sends source to the Check procedure.
func (c *RunnerClient) Check(ctx context.Context, source string) (*structpb.Struct, error) {
	res, err := c.check.CallUnary(ctx, sourceRequest(source))
	if err != nil {
		return nil, fmt.Errorf("check: %w", err)
	}
	return res.Msg, nil
}
