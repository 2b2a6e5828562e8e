package api

import (
	"context"
	"errors"

	"github.com/absmach/fedlearn/coordinator"
	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-kit/kit/endpoint"
)

func registerClientEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(clientReq)
		if !ok {
			return clientResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return clientResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		info, err := svc.RegisterClient(ctx, req.ClientInfo)
		if err != nil {
			return clientResponse{}, err
		}

		return clientResponse{
			ClientInfo: info,
			created:    true,
		}, nil
	}
}

func listClientsEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		clients, err := svc.ListClients(ctx)
		if err != nil {
			return listClientsResponse{}, err
		}

		return listClientsResponse{
			Total:   len(clients),
			Clients: clients,
		}, nil
	}
}

func removeClientEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return clientResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return clientResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		if err := svc.RemoveClient(ctx, req.id); err != nil {
			return clientResponse{}, err
		}

		return clientResponse{deleted: true}, nil
	}
}

func startRunEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(runReq)
		if !ok {
			return runResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return runResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		run, err := svc.StartRun(ctx, req.RunConfig)
		if err != nil {
			return runResponse{}, err
		}

		return runResponse{
			Run:     run,
			created: true,
		}, nil
	}
}

func getRunEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return runResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return runResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		run, err := svc.GetRun(ctx, req.id)
		if err != nil {
			return runResponse{}, err
		}

		return runResponse{Run: run}, nil
	}
}

func listRunsEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(listEntityReq)
		if !ok {
			return runPageResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return runPageResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		page, err := svc.ListRuns(ctx, req.offset, req.limit)
		if err != nil {
			return runPageResponse{}, err
		}

		return runPageResponse{RunPage: page}, nil
	}
}

func stopRunEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return runResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return runResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		run, err := svc.StopRun(ctx, req.id)
		if err != nil {
			return runResponse{}, err
		}

		return runResponse{Run: run}, nil
	}
}

func getHistoryEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return historyResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return historyResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		history, err := svc.GetHistory(ctx, req.id)
		if err != nil {
			return historyResponse{}, err
		}

		return historyResponse{
			RunID:  req.id,
			Rounds: history,
		}, nil
	}
}

func getParametersEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return checkpointResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return checkpointResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		cp, err := svc.GetGlobalParameters(ctx, req.id)
		if err != nil {
			return checkpointResponse{}, err
		}

		return checkpointResponse{Checkpoint: cp}, nil
	}
}
