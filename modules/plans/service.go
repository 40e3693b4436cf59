package plans

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/guarzo/studyplan/common"
	"github.com/guarzo/studyplan/common/model"
	"github.com/guarzo/studyplan/modules/api"
)

// Backend routes.
const (
	CreatePlanPath       = "/criar_plano/"
	GenerateDocumentPath = "/gerar_documentos/"
)

// Store keys for the active plan and its calendar events.
const (
	KeyCurrentPlan    = "iag_current_plan"
	KeyCalendarEvents = "iag_calendar_events"
)

var (
	ErrPlanRejected   = errors.New("plan rejected by generator")
	ErrNoPlan         = errors.New("no plan stored")
	ErrInvalidRequest = errors.New("invalid plan request")
	ErrUnreachable    = errors.New("API unreachable")
)

// PlanRequest is what a user fills in to ask for a plan.
type PlanRequest struct {
	Objective          string
	KnowledgeLevel     string
	Deadline           string
	StudyDays          []string
	AgendaRestrictions string
	// Difficulties is free text, one difficulty per line.
	Difficulties string
}

// Result is the outcome of a successful CreatePlan.
type Result struct {
	Plan   model.Plan
	Answer json.RawMessage
	// Events is nil when the answer carried none.
	Events json.RawMessage
}

// Service talks to the plan generator and keeps the active plan in the store.
type Service interface {
	CreatePlan(ctx context.Context, googleID string, req PlanRequest) (*Result, error)
	CurrentPlan() (*model.Plan, error)
	Events() (json.RawMessage, error)
	GenerateDocument(ctx context.Context, googleID, planID string) (*Document, error)
}

type service struct {
	client api.Client
	store  common.Store
	logger *slog.Logger
}

func NewService(client api.Client, store common.Store, logger *slog.Logger) Service {
	return &service{
		client: client,
		store:  store,
		logger: common.LoggerOrDefault(logger).With("component", "plans"),
	}
}

// BuildPlan turns a user request into the generator payload.
func BuildPlan(googleID string, req PlanRequest) (model.Plan, error) {
	if strings.TrimSpace(googleID) == "" {
		return model.Plan{}, fmt.Errorf("%w: user is not identified", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Objective) == "" || strings.TrimSpace(req.Deadline) == "" {
		return model.Plan{}, fmt.Errorf("%w: objective and deadline are required", ErrInvalidRequest)
	}
	if len(req.StudyDays) == 0 {
		return model.Plan{}, fmt.Errorf("%w: at least one study day is required", ErrInvalidRequest)
	}

	description := fmt.Sprintf("Nível atual: %s. Dias: %s. ", req.KnowledgeLevel, strings.Join(req.StudyDays, ", "))
	if req.AgendaRestrictions != "" {
		description += "Restrições: " + req.AgendaRestrictions
	}

	return model.Plan{
		GoogleID: googleID,
		Request: model.UserRequest{
			EventName:         "Plano de estudo - " + req.Objective,
			MainObjective:     req.Objective,
			EventDescription:  description,
			EventDate:         req.Deadline,
			ExpectedKnowledge: []string{},
			PriorKnowledge:    []string{},
			MainDifficulties:  splitLines(req.Difficulties),
		},
		DaysPerWeek:      len(req.StudyDays),
		DaysWithoutStudy: []string{},
	}, nil
}

func (s *service) CreatePlan(ctx context.Context, googleID string, req PlanRequest) (*Result, error) {
	plan, err := BuildPlan(googleID, req)
	if err != nil {
		return nil, err
	}

	env := s.client.Post(ctx, CreatePlanPath, plan)
	var resp model.CreatePlanResponse
	decodeErr := env.Decode(&resp)

	if !env.OK {
		if decodeErr == nil && resp.Error != nil && resp.Error.Message != "" {
			return nil, fmt.Errorf("%w: %s", ErrPlanRejected, resp.Error.Message)
		}
		return nil, envelopeError(env)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode plan response: %w", decodeErr)
	}
	if !resp.Success {
		msg := "generator returned no plan"
		if resp.Error != nil && resp.Error.Message != "" {
			msg = resp.Error.Message
		}
		return nil, fmt.Errorf("%w: %s", ErrPlanRejected, msg)
	}

	result := &Result{
		Plan:   plan,
		Answer: resp.Answer,
		Events: extractEvents(resp.Answer),
	}
	if err := s.save(result); err != nil {
		return nil, err
	}
	s.logger.Info("plan created", "objective", req.Objective, "has_events", result.Events != nil)
	return result, nil
}

func (s *service) save(r *Result) error {
	data, err := json.Marshal(r.Plan)
	if err != nil {
		return err
	}
	if err := s.store.Set(KeyCurrentPlan, string(data)); err != nil {
		return fmt.Errorf("failed to store plan: %w", err)
	}
	if r.Events == nil {
		return nil
	}
	if err := s.store.Set(KeyCalendarEvents, string(r.Events)); err != nil {
		return fmt.Errorf("failed to store events: %w", err)
	}
	return nil
}

func (s *service) CurrentPlan() (*model.Plan, error) {
	raw, ok := s.store.Get(KeyCurrentPlan)
	if !ok || raw == "" {
		return nil, ErrNoPlan
	}
	var plan model.Plan
	if err := model.UnmarshalJSON([]byte(raw), &plan); err != nil {
		return nil, fmt.Errorf("stored plan is corrupt: %w", err)
	}
	return &plan, nil
}

// Events returns the stored events array, or nil when there is none.
func (s *service) Events() (json.RawMessage, error) {
	raw, ok := s.store.Get(KeyCalendarEvents)
	if !ok || raw == "" {
		return nil, nil
	}
	if !json.Valid([]byte(raw)) {
		return nil, errors.New("stored events are not valid JSON")
	}
	return json.RawMessage(raw), nil
}

// extractEvents finds the events in a generator answer: either the answer
// itself is an array or it is an object with an "eventos"/"events" array.
func extractEvents(answer json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(answer)
	if isArray(trimmed) {
		return json.RawMessage(trimmed)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil
	}
	for _, key := range []string{"eventos", "events"} {
		if v := bytes.TrimSpace(obj[key]); isArray(v) {
			return json.RawMessage(v)
		}
	}
	return nil
}

func isArray(b []byte) bool {
	return len(b) > 0 && b[0] == '['
}

func splitLines(s string) []string {
	out := []string{}
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// envelopeError converts a failed envelope into an error.
func envelopeError(env model.Envelope) error {
	if env.Status == 0 {
		return fmt.Errorf("%w: %s", ErrUnreachable, env.Message())
	}
	return &common.HTTPError{StatusCode: env.Status, Body: []byte(env.Data.Text())}
}

// ErrorDetail pulls a readable message out of a failure body: the "detail"
// or "message" field of a JSON object, else the raw text.
func ErrorDetail(body string) string {
	var parsed struct {
		Detail  interface{} `json:"detail"`
		Message string      `json:"message"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err == nil {
		if d, ok := parsed.Detail.(string); ok && d != "" {
			return d
		}
		if parsed.Detail != nil {
			if b, err := json.Marshal(parsed.Detail); err == nil {
				return string(b)
			}
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	return body
}
