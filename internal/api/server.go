package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/trade_sniper/internal/cdp"
	"github.com/dgnsrekt/trade_sniper/internal/relay"
	"github.com/dgnsrekt/trade_sniper/internal/snapshot"
	"github.com/dgnsrekt/trade_sniper/internal/sniper"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Service is the read/control surface the sniper exposes over HTTP. The API
// is observational plus a single control verb; all acting happens in the
// monitors.
type Service interface {
	Status() sniper.Status
	Resume()
}

// Snapshots serves the stored action evidence records.
type Snapshots interface {
	List() ([]snapshot.ActionMeta, error)
	Get(id string) (snapshot.ActionMeta, error)
	ReadImage(id string) ([]byte, string, error)
	Delete(id string) error
}

func NewServer(svc Service, snaps Snapshots, broker *relay.Broker) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Trade Sniper Control API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})

	registerStatusHandlers(api, svc)
	registerSnapshotHandlers(api, snaps)

	if broker != nil {
		router.Get("/api/v1/events", relay.SSEHandler(broker))
	}

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *cdp.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case cdp.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case cdp.CodeTargetNotFound, cdp.CodeSnapshotNotFound:
			return huma.Error404NotFound(coded.Message)
		case cdp.CodeEvalTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case cdp.CodeCDPUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	if strings.Contains(err.Error(), "not found") {
		return huma.Error404NotFound(err.Error())
	}
	if strings.Contains(err.Error(), "invalid snapshot id") {
		return huma.Error400BadRequest(err.Error())
	}
	return huma.Error500InternalServerError(err.Error())
}
