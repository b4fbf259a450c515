package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/trade_sniper/internal/sniper"
)

func registerStatusHandlers(api huma.API, svc Service) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	type statusOutput struct {
		Body sniper.Status
	}
	huma.Register(api, huma.Operation{OperationID: "get-status", Method: http.MethodGet, Path: "/api/v1/status", Summary: "Aggregate sniper status", Tags: []string{"Status"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			out := &statusOutput{}
			out.Body = svc.Status()
			return out, nil
		})

	type targetsOutput struct {
		Body struct {
			Targets []sniper.TargetStatus `json:"targets"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-targets", Method: http.MethodGet, Path: "/api/v1/targets", Summary: "List monitored live search targets", Tags: []string{"Status"}},
		func(ctx context.Context, input *struct{}) (*targetsOutput, error) {
			out := &targetsOutput{}
			out.Body.Targets = svc.Status().Targets
			return out, nil
		})

	type resumeOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "resume", Method: http.MethodPost, Path: "/api/v1/resume", Summary: "Resume all paused targets", Tags: []string{"Control"}},
		func(ctx context.Context, input *struct{}) (*resumeOutput, error) {
			svc.Resume()
			out := &resumeOutput{}
			out.Body.Status = "resume signaled"
			return out, nil
		})
}
