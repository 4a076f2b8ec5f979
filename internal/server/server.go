package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"ligscreen/internal/catalog"
	"ligscreen/internal/collect"
	"ligscreen/internal/engine"
	"ligscreen/internal/rank"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"missing_column"`
	Message string         `json:"message" example:"the column \"lddt\" is missing from the results"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"column\":\"lddt\"}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing screening results. The API only reads
// files under the output directory; it never starts docking runs.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("ligscreen API", "0.1.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerLigands(group, cfg.Engine)
	registerResults(group, cfg.Engine)
	registerTop(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var mc *rank.MissingColumnError
	if errors.As(err, &mc) {
		return newAPIError(http.StatusUnprocessableEntity, "missing_column", err.Error(), map[string]any{"column": mc.Column})
	}
	var iv *rank.InvalidValueError
	if errors.As(err, &iv) {
		return newAPIError(http.StatusUnprocessableEntity, "invalid_value", err.Error(), map[string]any{"column": iv.Column, "row": iv.Row})
	}
	var me *catalog.MalformedError
	if errors.As(err, &me) {
		return newAPIError(http.StatusUnprocessableEntity, "malformed_catalog", err.Error(), map[string]any{"row": me.Row, "field": me.Field})
	}
	switch {
	case errors.Is(err, collect.ErrEmptyResultSet):
		return newAPIError(http.StatusNotFound, "no_results", err.Error(), nil)
	case errors.Is(err, engine.ErrInvalidTopK):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.Is(err, context.Canceled):
		return newAPIError(http.StatusServiceUnavailable, "canceled", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct{ Body HealthResponse }, error) {
		return &struct{ Body HealthResponse }{Body: HealthResponse{Status: "ok"}}, nil
	})
}

func registerLigands(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-ligands",
		Method:      http.MethodGet,
		Path:        "/ligands",
		Summary:     "List catalog ligands",
		Errors:      []int{http.StatusUnauthorized, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, _ *struct{}) (*struct{ Body LigandListResponse }, error) {
		ligands, err := e.Ligands()
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]LigandResponse, 0, len(ligands))
		for _, l := range ligands {
			out = append(out, ligandResponse(l))
		}
		return &struct{ Body LigandListResponse }{Body: LigandListResponse{Count: len(out), Ligands: out}}, nil
	})
}

func registerResults(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-results",
		Method:      http.MethodGet,
		Path:        "/results",
		Summary:     "Combined per-ligand results",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, _ *struct{}) (*struct{ Body ResultsResponse }, error) {
		table, outcomes, err := e.Results(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		statuses := make([]LigandStatusResponse, 0, len(outcomes))
		for _, o := range outcomes {
			statuses = append(statuses, ligandStatusResponse(o))
		}
		return &struct{ Body ResultsResponse }{Body: ResultsResponse{
			Columns: nonNilSlice(table.Columns),
			Rows:    nonNilSlice(table.Records()),
			Ligands: statuses,
		}}, nil
	})
}

func registerTop(api huma.API, e engine.Engine) {
	type topInput struct {
		K int `query:"k" minimum:"1" doc:"number of ligands to return"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-top",
		Method:      http.MethodGet,
		Path:        "/top",
		Summary:     "Top-K ligands by combined score",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *topInput) (*struct{ Body TopResponse }, error) {
		top, err := e.Ranked(ctx, input.K)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]ScoredLigandResponse, 0, len(top))
		for i, s := range top {
			out = append(out, scoredLigandResponse(i+1, s))
		}
		k := input.K
		if k == 0 {
			k = e.Config.Scoring.TopK
		}
		return &struct{ Body TopResponse }{Body: TopResponse{K: k, Count: len(out), Ligands: out}}, nil
	})
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		spec []byte
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>ligscreen API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}
