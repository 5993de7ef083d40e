package grpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"tinyserve/internal/registry"
	"tinyserve/internal/tensor"
	"tinyserve/pkg/types"
)

// ShutdownQueue is the pool-wide shutdown channel. Put enqueues n signals.
type ShutdownQueue interface {
	Put(n int) error
}

// Config wires a Server to its worker.
type Config struct {
	Registry *registry.Registry
	// Identity reported by GetPID.
	PID int
	// Pool size reported by GetNumParallelWorkers and enqueued by StopServer.
	NumWorkers int
	Shutdown   ShutdownQueue
	Logger     zerolog.Logger
}

// Server implements ModelServer over a registry.
type Server struct {
	reg        *registry.Registry
	pid        int
	numWorkers int
	shutdown   ShutdownQueue
	log        zerolog.Logger
}

var _ ModelServer = (*Server)(nil)

func NewServer(cfg Config) *Server {
	return &Server{
		reg:        cfg.Registry,
		pid:        cfg.PID,
		numWorkers: cfg.NumWorkers,
		shutdown:   cfg.Shutdown,
		log:        cfg.Logger,
	}
}

// respond wraps v as a Response. Values that cannot be encoded become an
// in-band error.
func respond(v any) *types.Response {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(types.ErrorPayload{Error: err.Error()})
	}
	return &types.Response{Data: b}
}

func (s *Server) fail(ctx context.Context, method, model string, err error) *types.Response {
	rpcInbandErrors.WithLabelValues(method).Inc()
	if !registry.IsUninitializedModel(err) {
		s.log.Error().Err(err).Str("method", method).Str("model", model).
			Str("request_id", RequestID(ctx)).Msg("request failed")
	}
	return respond(types.ErrorPayload{Error: err.Error()})
}

// known reports whether model is both listed under the plugin root and loaded.
func (s *Server) known(model string) bool {
	names, err := s.reg.ListModels()
	if err != nil {
		return false
	}
	return slices.Contains(names, strings.ToLower(model)) && s.reg.Has(model)
}

// parseArgs decodes the args field. The empty string means no arguments and
// yields nil; anything else must be a JSON object.
func parseArgs(raw string) (registry.Args, error) {
	if raw == "" {
		return nil, nil
	}
	var args registry.Args
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("invalid args: %w", err)
	}
	if args == nil {
		return nil, errors.New("invalid args: expected a JSON object")
	}
	return args, nil
}

// dispatch validates the model and args then runs fn, embedding every failure.
func (s *Server) dispatch(ctx context.Context, method, model, rawArgs string, fn func(registry.Args) (any, error)) *types.Response {
	if !s.known(model) {
		return s.fail(ctx, method, model, registry.ErrUninitializedModel(model))
	}
	args, err := parseArgs(rawArgs)
	if err != nil {
		return s.fail(ctx, method, model, err)
	}
	out, err := fn(args)
	if err != nil {
		return s.fail(ctx, method, model, err)
	}
	return respond(out)
}

func (s *Server) ListModels(ctx context.Context, _ *types.EmptyArgs) (*types.Response, error) {
	names, err := s.reg.ListModels()
	if err != nil {
		return s.fail(ctx, MethodListModels, "", err), nil
	}
	if names == nil {
		names = []string{}
	}
	return respond(names), nil
}

func (s *Server) RunImage(ctx context.Context, in *types.ImageArgs) (*types.Response, error) {
	return s.dispatch(ctx, MethodRunImage, in.Model, in.Args, func(args registry.Args) (any, error) {
		img, err := tensor.Decode(in.Image)
		if err != nil {
			return nil, err
		}
		return s.reg.Run(ctx, in.Model, img, args)
	}), nil
}

func (s *Server) RunBatchImage(ctx context.Context, in *types.BatchImageArgs) (*types.Response, error) {
	return s.dispatch(ctx, MethodRunBatchImage, in.Model, in.Args, func(args registry.Args) (any, error) {
		imgs, err := tensor.DecodeBatch(in.Images)
		if err != nil {
			return nil, err
		}
		items := make([]any, len(imgs))
		for i, img := range imgs {
			items[i] = img
		}
		return s.reg.RunBatch(ctx, in.Model, items, args)
	}), nil
}

func (s *Server) RunText(ctx context.Context, in *types.TextArgs) (*types.Response, error) {
	return s.dispatch(ctx, MethodRunText, in.Model, in.Args, func(args registry.Args) (any, error) {
		return s.reg.Run(ctx, in.Model, in.Text, args)
	}), nil
}

func (s *Server) RunBatchText(ctx context.Context, in *types.BatchTextArgs) (*types.Response, error) {
	return s.dispatch(ctx, MethodRunBatchText, in.Model, in.Args, func(args registry.Args) (any, error) {
		items := make([]any, len(in.Texts))
		for i, t := range in.Texts {
			items[i] = t
		}
		return s.reg.RunBatch(ctx, in.Model, items, args)
	}), nil
}

func (s *Server) GetInputShape(ctx context.Context, in *types.StringArg) (*types.Response, error) {
	if !s.known(in.Data) {
		return s.fail(ctx, MethodGetInputShape, in.Data, registry.ErrUninitializedModel(in.Data)), nil
	}
	shape, err := s.reg.InputShape(in.Data)
	if err != nil {
		return s.fail(ctx, MethodGetInputShape, in.Data, err), nil
	}
	return respond(shape), nil
}

func (s *Server) ReloadModel(ctx context.Context, in *types.StringArg) (*types.Response, error) {
	ok := s.reg.Load(in.Data)
	s.log.Info().Str("model", in.Data).Bool("ok", ok).Str("request_id", RequestID(ctx)).Msg("reload")
	return respond(types.ReloadPayload{OK: ok}), nil
}

func (s *Server) GetPID(context.Context, *types.StringArg) (*types.Response, error) {
	return respond(types.PIDPayload{PID: s.pid}), nil
}

func (s *Server) GetNumParallelWorkers(context.Context, *types.StringArg) (*types.Response, error) {
	return respond(types.NumWorkersPayload{NumWorkers: s.numWorkers}), nil
}

// StopServer enqueues one shutdown signal per pool member, whichever worker
// receives it.
func (s *Server) StopServer(ctx context.Context, _ *types.StringArg) (*types.Response, error) {
	if s.shutdown == nil {
		return s.fail(ctx, MethodStopServer, "", errors.New("shutdown queue not configured")), nil
	}
	if err := s.shutdown.Put(s.numWorkers); err != nil {
		return s.fail(ctx, MethodStopServer, "", err), nil
	}
	s.log.Info().Int("signals", s.numWorkers).Str("request_id", RequestID(ctx)).Msg("stop requested")
	return respond(types.StopPayload{Stopping: true}), nil
}
