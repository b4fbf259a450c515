package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/trade_sniper/internal/snapshot"
)

type snapshotIDInput struct {
	ID string `path:"id" doc:"Snapshot UUID"`
}

func registerSnapshotHandlers(api huma.API, snaps Snapshots) {
	type listOutput struct {
		Body struct {
			Snapshots []snapshot.ActionMeta `json:"snapshots"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-snapshots", Method: http.MethodGet, Path: "/api/v1/snapshots", Summary: "List action evidence records", Tags: []string{"Snapshots"}},
		func(ctx context.Context, input *struct{}) (*listOutput, error) {
			metas, err := snaps.List()
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listOutput{}
			out.Body.Snapshots = metas
			return out, nil
		})

	type getOutput struct {
		Body snapshot.ActionMeta
	}
	huma.Register(api, huma.Operation{OperationID: "get-snapshot", Method: http.MethodGet, Path: "/api/v1/snapshots/{id}", Summary: "Get one action record", Tags: []string{"Snapshots"}},
		func(ctx context.Context, input *snapshotIDInput) (*getOutput, error) {
			meta, err := snaps.Get(input.ID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &getOutput{}
			out.Body = meta
			return out, nil
		})

	type imageOutput struct {
		ContentType string `header:"Content-Type"`
		Body        []byte
	}
	huma.Register(api, huma.Operation{OperationID: "get-snapshot-image", Method: http.MethodGet, Path: "/api/v1/snapshots/{id}/image", Summary: "Download the action screenshot", Tags: []string{"Snapshots"}},
		func(ctx context.Context, input *snapshotIDInput) (*imageOutput, error) {
			data, format, err := snaps.ReadImage(input.ID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &imageOutput{}
			out.ContentType = "image/" + format
			out.Body = data
			return out, nil
		})

	type deleteOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "delete-snapshot", Method: http.MethodDelete, Path: "/api/v1/snapshots/{id}", Summary: "Delete an action record", Tags: []string{"Snapshots"}},
		func(ctx context.Context, input *snapshotIDInput) (*deleteOutput, error) {
			if err := snaps.Delete(input.ID); err != nil {
				return nil, mapErr(err)
			}
			out := &deleteOutput{}
			out.Body.Status = "deleted"
			return out, nil
		})
}
