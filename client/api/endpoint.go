package api

import (
	"context"

	"github.com/absmach/fedlearn/client"
	"github.com/absmach/fedlearn/pkg/fl"
	"github.com/go-kit/kit/endpoint"
)

func getParametersEndpoint(svc client.Service) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		p, err := svc.GetParameters(ctx)
		if err != nil {
			return nil, err
		}

		return parametersRes{Parameters: p}, nil
	}
}

func fitEndpoint(svc client.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(roundReq)
		if err := req.validate(fl.PhaseFit); err != nil {
			return nil, err
		}

		r, err := svc.Fit(ctx, req.Parameters, req.Config)
		if err != nil {
			return nil, err
		}

		return reportRes{ClientReport: r}, nil
	}
}

func evaluateEndpoint(svc client.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(roundReq)
		if err := req.validate(fl.PhaseEvaluate); err != nil {
			return nil, err
		}

		r, err := svc.Evaluate(ctx, req.Parameters, req.Config)
		if err != nil {
			return nil, err
		}

		return reportRes{ClientReport: r}, nil
	}
}
