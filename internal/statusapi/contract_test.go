// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package statusapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/sosync/internal/domain/sos/model"
	"github.com/ManuGH/sosync/internal/wire"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
	"github.com/stretchr/testify/require"
)

var (
	contractOnce   sync.Once
	contractRouter routers.Router
	contractErr    error
)

func loadContract(t *testing.T) routers.Router {
	t.Helper()
	contractOnce.Do(func() {
		doc, err := openapi3.NewLoader().LoadFromData(openAPIDocument)
		if err != nil {
			contractErr = err
			return
		}
		if err := doc.Validate(context.Background()); err != nil {
			contractErr = err
			return
		}
		contractRouter, contractErr = legacy.NewRouter(doc)
	})
	require.NoError(t, contractErr, "openapi document")
	return contractRouter
}

func validateContract(t *testing.T, req *http.Request, rec *httptest.ResponseRecorder) {
	t.Helper()
	route, params, err := loadContract(t).FindRoute(req)
	require.NoError(t, err, "route %s", req.URL)

	in := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    req,
			PathParams: params,
			Route:      route,
		},
		Status: rec.Code,
		Header: rec.Header(),
	}
	in.SetBodyBytes(rec.Body.Bytes())
	require.NoError(t, openapi3filter.ValidateResponse(context.Background(), in), "%s -> %d", req.URL, rec.Code)
}

func TestResponsesMatchOpenAPI(t *testing.T) {
	s, agg, _ := newTestServer(t, 0)
	ctx := context.Background()
	agg.Apply(ctx, wire.SessionCreated{SessionID: "7", RoomID: "room-7", Name: "pixel", Category: model.CategoryAlert,
		Position: model.Position{Latitude: 28.70, Longitude: 77.10}, CreatedAt: t0})
	agg.Apply(ctx, wire.SessionCreated{SessionID: "8", RoomID: "room-8", CreatedAt: t0})
	agg.Apply(ctx, wire.SessionResolved{SessionID: "8", ResolvedAt: t0.Add(2 * time.Minute)})
	agg.Apply(ctx, wire.UnitLocation{UnitID: "U-9", Fix: model.Fix{Position: model.Position{Latitude: 28.6, Longitude: 77.2}, CapturedAt: t0}})

	for _, path := range []string{
		"/api/v1/snapshot",
		"/api/v1/sessions",
		"/api/v1/sessions/7",
		"/api/v1/sessions/missing",
		"/api/v1/units",
		"/api/v1/history",
		"/api/v1/history?limit=1",
		"/api/v1/history?limit=-4",
	} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			req.RemoteAddr = "192.0.2.1:1234"
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)
			validateContract(t, req, rec)
		})
	}
}

func TestOpenAPIDocumentServed(t *testing.T) {
	s, _, _ := newTestServer(t, 0)
	rec := get(t, s.Handler(), "/api/v1/openapi.yaml")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, openAPIDocument, rec.Body.Bytes())
}
