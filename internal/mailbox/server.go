package mailbox

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ShayCichocki/colony/internal/comm"
	"github.com/ShayCichocki/colony/internal/errs"
	"github.com/ShayCichocki/colony/internal/logging"
	"github.com/ShayCichocki/colony/internal/version"
	"github.com/ShayCichocki/colony/pkg/models"
)

// Config for the mailbox HTTP API.
type Config struct {
	Gate      *comm.Gate
	Transport Transport
	// BasePath prefixes every route. Defaults to /v1.
	BasePath  string
	JWTSecret string
	Logger    *logging.DebugLogger
}

type apiErrorBody struct {
	Code    string `json:"code" example:"hierarchy_violation"`
	Message string `json:"message" example:"worker-3 may not message commander"`
}

// apiError is the error envelope every failure uses.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

func newAPIError(status int, code, message string) huma.StatusError {
	if code == "" {
		code = strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
	return &apiError{status: status, Body: apiErrorBody{Code: code, Message: message}}
}

// SendRequest is the body of POST /messages. The sender is always the
// authenticated agent.
type SendRequest struct {
	ID      string `json:"id,omitempty" doc:"Idempotency key; redelivery returns the first decision"`
	To      string `json:"to" minLength:"1"`
	Channel string `json:"channel,omitempty" enum:"direct,escalation,system"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

// SendResponse reports the gate's decision for an allowed send.
type SendResponse struct {
	MessageID string        `json:"message_id"`
	Decision  comm.Decision `json:"decision"`
}

// ViolationsResponse is the compliance report plus the raw log.
type ViolationsResponse struct {
	Report  comm.Report                `json:"report"`
	Entries []models.ViolationLogEntry `json:"entries"`
}

// NewHandler returns the HTTP handler for the mailbox API.
func NewHandler(cfg Config) (http.Handler, error) {
	if cfg.Gate == nil || cfg.Transport == nil {
		return nil, errors.New("mailbox: gate and transport required")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, errors.New("mailbox: jwt secret required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, _ ...error) huma.StatusError {
		return newAPIError(status, "", msg)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.JWTSecret))
	hcfg := huma.DefaultConfig("Colony Mailbox API", version.Get())
	hcfg.OpenAPIPath = basePath + "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	s := &server{gate: cfg.Gate, transport: cfg.Transport, logger: cfg.Logger.With("mailbox-api")}
	registerHealth(group)
	s.registerSend(group)
	s.registerPoll(group)
	s.registerViolations(group)
	s.registerAgents(group)
	return router, nil
}

type server struct {
	gate      *comm.Gate
	transport Transport
	logger    *logging.DebugLogger
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
		}{Body: map[string]string{"status": "ok", "version": version.Get()}}, nil
	})
}

func (s *server) registerSend(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "send-message",
		Method:        http.MethodPost,
		Path:          "/messages",
		Summary:       "Send a message through the gate",
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body SendRequest
	}) (*struct {
		Body SendResponse `json:"body"`
	}, error) {
		p, _ := principalFromContext(ctx)
		msg := models.Message{
			ID:        input.Body.ID,
			From:      p.AgentID,
			To:        input.Body.To,
			Channel:   input.Body.Channel,
			Subject:   input.Body.Subject,
			Body:      input.Body.Body,
			Timestamp: time.Now().UTC(),
		}
		if msg.ID == "" {
			msg.ID = uuid.New().String()
		}
		d, err := s.gate.Send(ctx, msg)
		if err != nil {
			return nil, sendError(d, err)
		}
		s.logger.Log("%s -> %s (%s) delivered as %s", msg.From, msg.To, d.Kind, msg.ID)
		return &struct {
			Body SendResponse `json:"body"`
		}{Body: SendResponse{MessageID: msg.ID, Decision: d}}, nil
	})
}

func sendError(d comm.Decision, err error) huma.StatusError {
	switch {
	case errors.Is(err, errs.ErrAgentRevoked), errors.Is(err, errs.ErrPolicyViolation):
		return newAPIError(http.StatusForbidden, string(d.Kind), d.Reason)
	case errors.Is(err, errs.ErrCollaboratorUnavailable):
		return newAPIError(http.StatusServiceUnavailable, "transport_unavailable", err.Error())
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func (s *server) registerPoll(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "poll-messages",
		Method:      http.MethodGet,
		Path:        "/agents/{id}/messages",
		Summary:     "Drain an agent's queue",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []models.Message `json:"body"`
	}, error) {
		p, _ := principalFromContext(ctx)
		if p.AgentID != input.ID && p.AgentID != comm.CommanderID {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "agents may only read their own queue")
		}
		if s.gate.Registry().IsRevoked(input.ID) {
			return nil, newAPIError(http.StatusForbidden, string(comm.DecisionSenderRevoked), input.ID+" is revoked")
		}
		msgs, err := s.transport.Poll(ctx, input.ID)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error())
		}
		if msgs == nil {
			msgs = []models.Message{}
		}
		return &struct {
			Body []models.Message `json:"body"`
		}{Body: msgs}, nil
	})
}

func (s *server) registerViolations(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-violations",
		Method:      http.MethodGet,
		Path:        "/violations",
		Summary:     "Compliance report and violation log",
	}, func(ctx context.Context, input *struct {
		Agent string `query:"agent"`
		Top   int    `query:"top" default:"5" minimum:"1" maximum:"100"`
	}) (*struct {
		Body ViolationsResponse `json:"body"`
	}, error) {
		entries := s.gate.Violations()
		if input.Agent != "" {
			entries = s.gate.Registry().History(input.Agent)
		}
		if entries == nil {
			entries = []models.ViolationLogEntry{}
		}
		return &struct {
			Body ViolationsResponse `json:"body"`
		}{Body: ViolationsResponse{Report: s.gate.Registry().BuildReport(input.Top), Entries: entries}}, nil
	})
}

func (s *server) registerAgents(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-agents",
		Method:      http.MethodGet,
		Path:        "/agents",
		Summary:     "List registered agents",
	}, func(ctx context.Context, input *struct {
		Domain string `query:"domain"`
		State  string `query:"state"`
	}) (*struct {
		Body []models.Agent `json:"body"`
	}, error) {
		out := []models.Agent{}
		for _, a := range s.gate.Registry().All() {
			if input.Domain != "" && a.Domain != input.Domain {
				continue
			}
			if input.State != "" && !strings.EqualFold(string(a.State), input.State) {
				continue
			}
			out = append(out, a)
		}
		return &struct {
			Body []models.Agent `json:"body"`
		}{Body: out}, nil
	})
}
