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
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fieldline/internal/apperr"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine         engine.Engine
	BasePath       string
	RequestTimeout time.Duration
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"capacity_exceeded"`
	Message string         `json:"message" example:"contract k1 capacity exceeded"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Fieldline API.
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
			// Schema-level request validation maps to 400; 422 is reserved
			// for capacity rejections.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	if cfg.RequestTimeout > 0 {
		router.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	hcfg := huma.DefaultConfig("Fieldline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerWorkers(group, cfg.Engine)
	registerClients(group, cfg.Engine)
	registerContracts(group, cfg.Engine)
	registerActivities(group, cfg.Engine)
	registerAvailability(group, cfg.Engine)
	registerInvoices(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
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

// handleError maps the business failure taxonomy onto HTTP statuses.
// Anything untyped is an infrastructure failure and stays a 500.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve apperr.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	var nfe apperr.NotFoundError
	if errors.As(err, &nfe) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), map[string]any{"kind": nfe.Kind, "id": nfe.ID})
	}
	var ce apperr.ConflictError
	if errors.As(err, &ce) {
		var details map[string]any
		if len(ce.ActivityIDs) > 0 {
			details = map[string]any{"conflicting_activity_ids": ce.ActivityIDs}
		}
		return newAPIError(http.StatusConflict, "conflict", err.Error(), details)
	}
	var cpe apperr.CapacityError
	if errors.As(err, &cpe) {
		return newAPIError(http.StatusUnprocessableEntity, "capacity_exceeded", err.Error(), map[string]any{
			"contract_id":     cpe.ContractID,
			"requested_hours": cpe.Requested,
			"total_hours":     cpe.Total,
			"used_hours":      cpe.Used,
			"remaining_hours": cpe.Remaining,
		})
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "capacity_exceeded"
	default:
		return "internal_error"
	}
}

func actor(headerVal string) string {
	if headerVal == "" {
		return "api"
	}
	return headerVal
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Fieldline API Docs</title>
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
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerWorkers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-worker",
		Method:        http.MethodPost,
		Path:          "/workers",
		Summary:       "Register worker",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ActorID string              `header:"X-Actor-Id"`
		Body    CreateWorkerRequest `json:"body"`
	}) (*struct {
		Body domain.Worker `json:"body"`
	}, error) {
		w, err := e.CreateWorker(ctx, engine.WorkerCreateOptions{
			ID:         deref(input.Body.ID),
			Name:       input.Body.Name,
			HourlyRate: input.Body.HourlyRate,
			Specialty:  deref(input.Body.Specialty),
			ActorID:    actor(input.ActorID),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Worker `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-workers",
		Method:      http.MethodGet,
		Path:        "/workers",
		Summary:     "List workers",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Worker `json:"body"`
	}, error) {
		items, err := e.Repo.ListWorkers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Worker `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-worker",
		Method:      http.MethodGet,
		Path:        "/workers/{worker_id}",
		Summary:     "Get worker",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkerID string `path:"worker_id"`
	}) (*struct {
		Body domain.Worker `json:"body"`
	}, error) {
		w, err := e.Repo.GetWorker(ctx, input.WorkerID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Worker `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-worker",
		Method:      http.MethodPatch,
		Path:        "/workers/{worker_id}",
		Summary:     "Update worker",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkerID string              `path:"worker_id"`
		ActorID  string              `header:"X-Actor-Id"`
		Body     UpdateWorkerRequest `json:"body"`
	}) (*struct {
		Body domain.Worker `json:"body"`
	}, error) {
		w, err := e.UpdateWorker(ctx, input.WorkerID, repo.WorkerUpdate{
			Name:       input.Body.Name,
			HourlyRate: input.Body.HourlyRate,
			Specialty:  input.Body.Specialty,
		}, actor(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Worker `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-worker",
		Method:        http.MethodDelete,
		Path:          "/workers/{worker_id}",
		Summary:       "Delete worker",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		WorkerID string `path:"worker_id"`
		ActorID  string `header:"X-Actor-Id"`
	}) (*struct{}, error) {
		if err := e.DeleteWorker(ctx, input.WorkerID, actor(input.ActorID)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerClients(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-client",
		Method:        http.MethodPost,
		Path:          "/clients",
		Summary:       "Register client",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ActorID string              `header:"X-Actor-Id"`
		Body    CreateClientRequest `json:"body"`
	}) (*struct {
		Body domain.Client `json:"body"`
	}, error) {
		c, err := e.CreateClient(ctx, engine.ClientCreateOptions{
			ID:          deref(input.Body.ID),
			Name:        input.Body.Name,
			ContactName: input.Body.ContactName,
			Email:       input.Body.Email,
			BillingRate: input.Body.BillingRate,
			ActorID:     actor(input.ActorID),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Client `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-clients",
		Method:      http.MethodGet,
		Path:        "/clients",
		Summary:     "List clients",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Client `json:"body"`
	}, error) {
		items, err := e.Repo.ListClients(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Client `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-client",
		Method:      http.MethodGet,
		Path:        "/clients/{client_id}",
		Summary:     "Get client",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ClientID string `path:"client_id"`
	}) (*struct {
		Body domain.Client `json:"body"`
	}, error) {
		c, err := e.Repo.GetClient(ctx, input.ClientID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Client `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-client",
		Method:      http.MethodPatch,
		Path:        "/clients/{client_id}",
		Summary:     "Update client",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ClientID string              `path:"client_id"`
		ActorID  string              `header:"X-Actor-Id"`
		Body     UpdateClientRequest `json:"body"`
	}) (*struct {
		Body domain.Client `json:"body"`
	}, error) {
		c, err := e.UpdateClient(ctx, input.ClientID, repo.ClientUpdate{
			Name:        input.Body.Name,
			ContactName: input.Body.ContactName,
			Email:       input.Body.Email,
			BillingRate: input.Body.BillingRate,
			ClearRate:   input.Body.ClearBillingRate,
		}, actor(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Client `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-client",
		Method:        http.MethodDelete,
		Path:          "/clients/{client_id}",
		Summary:       "Delete client",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ClientID string `path:"client_id"`
		ActorID  string `header:"X-Actor-Id"`
	}) (*struct{}, error) {
		if err := e.DeleteClient(ctx, input.ClientID, actor(input.ActorID)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "client-activity-counts",
		Method:      http.MethodGet,
		Path:        "/clients/{client_id}/activity-counts",
		Summary:     "Activity counts per status for a client",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ClientID string `path:"client_id"`
	}) (*struct {
		Body map[string]int `json:"body"`
	}, error) {
		if _, err := e.Repo.GetClient(ctx, input.ClientID); err != nil {
			return nil, handleError(err)
		}
		counts, err := e.Repo.CountActivitiesByStatus(ctx, input.ClientID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]int `json:"body"`
		}{Body: counts}, nil
	})
}

func registerContracts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-contract",
		Method:        http.MethodPost,
		Path:          "/contracts",
		Summary:       "Open hour contract",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ActorID string                `header:"X-Actor-Id"`
		Body    CreateContractRequest `json:"body"`
	}) (*struct {
		Body domain.Contract `json:"body"`
	}, error) {
		c, err := e.CreateContract(ctx, engine.ContractCreateOptions{
			ID:          deref(input.Body.ID),
			ClientID:    input.Body.ClientID,
			OrderNumber: input.Body.OrderNumber,
			TotalHours:  input.Body.TotalHours,
			StartDate:   input.Body.StartDate,
			EndDate:     input.Body.EndDate,
			ActorID:     actor(input.ActorID),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Contract `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-contracts",
		Method:      http.MethodGet,
		Path:        "/contracts",
		Summary:     "List contracts",
	}, func(ctx context.Context, input *struct {
		ClientID string `query:"client_id"`
		Status   string `query:"status" enum:"active,closed,"`
	}) (*struct {
		Body []domain.Contract `json:"body"`
	}, error) {
		items, err := e.Repo.ListContracts(ctx, repo.ContractFilters{ClientID: input.ClientID, Status: input.Status})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Contract `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-contract",
		Method:      http.MethodGet,
		Path:        "/contracts/{contract_id}",
		Summary:     "Get contract",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ContractID string `path:"contract_id"`
	}) (*struct {
		Body domain.Contract `json:"body"`
	}, error) {
		c, err := e.Repo.GetContract(ctx, input.ContractID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Contract `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-contract",
		Method:      http.MethodPatch,
		Path:        "/contracts/{contract_id}",
		Summary:     "Update contract",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ContractID string                `path:"contract_id"`
		ActorID    string                `header:"X-Actor-Id"`
		Body       UpdateContractRequest `json:"body"`
	}) (*struct {
		Body domain.Contract `json:"body"`
	}, error) {
		c, err := e.UpdateContract(ctx, input.ContractID, repo.ContractUpdate{
			TotalHours: input.Body.TotalHours,
			StartDate:  input.Body.StartDate,
			EndDate:    input.Body.EndDate,
			Status:     input.Body.Status,
		}, actor(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Contract `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-contract",
		Method:        http.MethodDelete,
		Path:          "/contracts/{contract_id}",
		Summary:       "Delete contract",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ContractID string `path:"contract_id"`
		ActorID    string `header:"X-Actor-Id"`
	}) (*struct{}, error) {
		if err := e.DeleteContract(ctx, input.ContractID, actor(input.ActorID)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "contract-hours",
		Method:      http.MethodGet,
		Path:        "/contracts/{contract_id}/hours",
		Summary:     "Contract hour ledger position",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ContractID string `path:"contract_id"`
	}) (*struct {
		Body engine.HoursSummary `json:"body"`
	}, error) {
		s, err := e.ContractHours(ctx, input.ContractID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.HoursSummary `json:"body"`
		}{Body: s}, nil
	})
}

func registerActivities(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-activity",
		Method:        http.MethodPost,
		Path:          "/activities",
		Summary:       "Schedule activity",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ActorID string                `header:"X-Actor-Id"`
		Body    CreateActivityRequest `json:"body"`
	}) (*struct {
		Body domain.Activity `json:"body"`
	}, error) {
		a, err := e.CreateActivity(ctx, engine.ActivityCreateOptions{
			ID:             deref(input.Body.ID),
			Title:          input.Body.Title,
			ClientID:       input.Body.ClientID,
			ContractID:     deref(input.Body.ContractID),
			WorkerID:       deref(input.Body.WorkerID),
			ScheduledStart: input.Body.ScheduledStart,
			ScheduledEnd:   input.Body.ScheduledEnd,
			Location:       deref(input.Body.Location),
			Description:    deref(input.Body.Description),
			ActorID:        actor(input.ActorID),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Activity `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-activities",
		Method:      http.MethodGet,
		Path:        "/activities",
		Summary:     "List activities",
	}, func(ctx context.Context, input *struct {
		ClientID        string `query:"client_id"`
		ContractID      string `query:"contract_id"`
		WorkerID        string `query:"worker_id"`
		Status          string `query:"status" enum:"unassigned,scheduled,in_progress,done,verified,invoiced,"`
		Limit           int    `query:"limit" minimum:"0" maximum:"500"`
		CursorCreatedAt string `query:"cursor_created_at"`
		CursorID        string `query:"cursor_id"`
	}) (*struct {
		Body []domain.Activity `json:"body"`
	}, error) {
		items, err := e.Repo.ListActivities(ctx, repo.ActivityFilters{
			ClientID:        input.ClientID,
			ContractID:      input.ContractID,
			WorkerID:        input.WorkerID,
			Status:          input.Status,
			Limit:           input.Limit,
			CursorCreatedAt: input.CursorCreatedAt,
			CursorID:        input.CursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Activity `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-activity",
		Method:      http.MethodGet,
		Path:        "/activities/{activity_id}",
		Summary:     "Get activity",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActivityID string `path:"activity_id"`
	}) (*struct {
		Body domain.Activity `json:"body"`
	}, error) {
		a, err := e.Repo.GetActivity(ctx, input.ActivityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Activity `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-activity",
		Method:      http.MethodPatch,
		Path:        "/activities/{activity_id}",
		Summary:     "Update activity",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ActivityID string                `path:"activity_id"`
		ActorID    string                `header:"X-Actor-Id"`
		Body       UpdateActivityRequest `json:"body"`
	}) (*struct {
		Body domain.Activity `json:"body"`
	}, error) {
		a, err := e.UpdateActivity(ctx, input.ActivityID, engine.ActivityUpdateOptions{
			Title:          input.Body.Title,
			ContractID:     input.Body.ContractID,
			ClearContract:  input.Body.ClearContract,
			ScheduledStart: input.Body.ScheduledStart,
			ScheduledEnd:   input.Body.ScheduledEnd,
			Location:       input.Body.Location,
			Description:    input.Body.Description,
			ActorID:        actor(input.ActorID),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Activity `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-activity",
		Method:        http.MethodDelete,
		Path:          "/activities/{activity_id}",
		Summary:       "Delete activity",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActivityID string `path:"activity_id"`
		ActorID    string `header:"X-Actor-Id"`
	}) (*struct{}, error) {
		if err := e.DeleteActivity(ctx, input.ActivityID, actor(input.ActorID)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-activity",
		Method:      http.MethodPost,
		Path:        "/activities/{activity_id}/assign",
		Summary:     "Assign or unassign worker",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ActivityID string                `path:"activity_id"`
		ActorID    string                `header:"X-Actor-Id"`
		Body       AssignActivityRequest `json:"body"`
	}) (*struct {
		Body domain.Activity `json:"body"`
	}, error) {
		a, err := e.AssignActivity(ctx, input.ActivityID, deref(input.Body.WorkerID), actor(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Activity `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-activity-status",
		Method:      http.MethodPatch,
		Path:        "/activities/{activity_id}/status",
		Summary:     "Transition activity status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ActivityID string                   `path:"activity_id"`
		Force      bool                     `query:"force"`
		ActorID    string                   `header:"X-Actor-Id"`
		Body       SetActivityStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Activity `json:"body"`
	}, error) {
		a, err := e.SetActivityStatus(ctx, input.ActivityID, input.Body.Status, input.Force, actor(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Activity `json:"body"`
		}{Body: a}, nil
	})
}

func registerAvailability(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "check-availability",
		Method:      http.MethodPost,
		Path:        "/availability/check",
		Summary:     "Check worker availability",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body AvailabilityCheckRequest `json:"body"`
	}) (*struct {
		Body engine.AvailabilityResult `json:"body"`
	}, error) {
		res, err := e.CheckAvailability(ctx, input.Body.WorkerID, input.Body.ScheduledStart, input.Body.ScheduledEnd, deref(input.Body.ExcludeActivityID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.AvailabilityResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerInvoices(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "generate-client-invoice",
		Method:        http.MethodPost,
		Path:          "/invoices/client",
		Summary:       "Generate client invoice",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ActorID string                 `header:"X-Actor-Id"`
		Body    GenerateInvoiceRequest `json:"body"`
	}) (*struct {
		Body domain.Invoice `json:"body"`
	}, error) {
		inv, err := e.GenerateClientInvoice(ctx, input.Body.EntityID, input.Body.PeriodStart, input.Body.PeriodEnd, actor(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Invoice `json:"body"`
		}{Body: inv}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "generate-worker-payout",
		Method:        http.MethodPost,
		Path:          "/invoices/worker",
		Summary:       "Generate worker payout",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ActorID string                 `header:"X-Actor-Id"`
		Body    GenerateInvoiceRequest `json:"body"`
	}) (*struct {
		Body domain.Invoice `json:"body"`
	}, error) {
		inv, err := e.GenerateWorkerPayout(ctx, input.Body.EntityID, input.Body.PeriodStart, input.Body.PeriodEnd, actor(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Invoice `json:"body"`
		}{Body: inv}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-invoices",
		Method:      http.MethodGet,
		Path:        "/invoices",
		Summary:     "List invoices",
	}, func(ctx context.Context, input *struct {
		Kind     string `query:"kind" enum:"client_bill,worker_payout,"`
		ClientID string `query:"client_id"`
		WorkerID string `query:"worker_id"`
		Status   string `query:"status" enum:"draft,sent,paid,"`
	}) (*struct {
		Body []domain.Invoice `json:"body"`
	}, error) {
		items, err := e.Repo.ListInvoices(ctx, repo.InvoiceFilters{
			Kind:     input.Kind,
			ClientID: input.ClientID,
			WorkerID: input.WorkerID,
			Status:   input.Status,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Invoice `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-invoice",
		Method:      http.MethodGet,
		Path:        "/invoices/{invoice_id}",
		Summary:     "Get invoice",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		InvoiceID string `path:"invoice_id"`
	}) (*struct {
		Body domain.Invoice `json:"body"`
	}, error) {
		inv, err := e.Repo.GetInvoice(ctx, input.InvoiceID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Invoice `json:"body"`
		}{Body: inv}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-invoice-status",
		Method:      http.MethodPatch,
		Path:        "/invoices/{invoice_id}/status",
		Summary:     "Advance invoice status",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		InvoiceID string                  `path:"invoice_id"`
		ActorID   string                  `header:"X-Actor-Id"`
		Body      SetInvoiceStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Invoice `json:"body"`
	}, error) {
		inv, err := e.SetInvoiceStatus(ctx, input.InvoiceID, input.Body.Status, actor(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Invoice `json:"body"`
		}{Body: inv}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Latest audit events",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" minimum:"0" maximum:"1000"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		limit := input.Limit
		if limit == 0 {
			limit = 50
		}
		items, err := e.Repo.LatestEvents(ctx, limit, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}
