package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/geoproapp/geopro-server/internal/domain"
)

func (s *Server) registerReviewRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getReviewQueue",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}/queue",
		Summary:     "Get review queue",
		Description: "Returns the pending decision requests in the order they must be answered",
		Tags:        []string{"Review"},
	}, s.handleGetQueue)

	huma.Register(s.api, huma.Operation{
		OperationID: "getReviewHead",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}/queue/head",
		Summary:     "Get next decision",
		Description: "Returns the decision request that must be answered next",
		Tags:        []string{"Review"},
	}, s.handleGetHead)

	huma.Register(s.api, huma.Operation{
		OperationID: "decideRecord",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/records/{recordId}/decision",
		Summary:     "Decide record",
		Description: "Selects a presented candidate or confirms the original place for the record at the head of the queue",
		Tags:        []string{"Review"},
	}, s.handleDecide)

	huma.Register(s.api, huma.Operation{
		OperationID: "skipRecord",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/records/{recordId}/skip",
		Summary:     "Skip record",
		Description: "Moves the record at the head of the queue to its tail",
		Tags:        []string{"Review"},
	}, s.handleSkip)
}

// === DTOs ===

// QueueResponse contains the review queue.
type QueueResponse struct {
	Requests []DecisionRequestResponse `json:"requests" doc:"Decision requests in FIFO order"`
}

// QueueOutput wraps the queue for Huma.
type QueueOutput struct {
	Body QueueResponse
}

// HeadResponse contains the next decision request, if any.
type HeadResponse struct {
	Request *DecisionRequestResponse `json:"request,omitempty" doc:"Next request; absent when the queue is empty"`
	Empty   bool                     `json:"empty" doc:"True when nothing is waiting for review"`
}

// HeadOutput wraps the head for Huma.
type HeadOutput struct {
	Body HeadResponse
}

// DecisionRequestBody is a reviewer's answer.
type DecisionRequestBody struct {
	Action         domain.DecisionAction `json:"action" enum:"select,original" doc:"select a candidate or keep the original"`
	CandidateIndex int                   `json:"candidate_index,omitempty" minimum:"0" doc:"Index into the presented candidates when action is select"`
}

// DecideInput wraps a decision for Huma.
type DecideInput struct {
	ID       string `path:"id" doc:"Session ID"`
	RecordID string `path:"recordId" doc:"Record ID"`
	Body     DecisionRequestBody
}

// RecordActionInput addresses one record of a session.
type RecordActionInput struct {
	ID       string `path:"id" doc:"Session ID"`
	RecordID string `path:"recordId" doc:"Record ID"`
}

// OutcomeOutput wraps an outcome for Huma.
type OutcomeOutput struct {
	Body OutcomeResponse
}

// === Handlers ===

func (s *Server) handleGetQueue(ctx context.Context, input *SessionIDInput) (*QueueOutput, error) {
	queue, err := s.services.Sessions.Queue(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	resp := make([]DecisionRequestResponse, len(queue))
	for i, req := range queue {
		resp[i] = toDecisionRequestResponse(req)
	}
	return &QueueOutput{Body: QueueResponse{Requests: resp}}, nil
}

func (s *Server) handleGetHead(ctx context.Context, input *SessionIDInput) (*HeadOutput, error) {
	req, ok, err := s.services.Sessions.Head(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &HeadOutput{Body: HeadResponse{Empty: true}}, nil
	}
	r := toDecisionRequestResponse(req)
	return &HeadOutput{Body: HeadResponse{Request: &r}}, nil
}

func (s *Server) handleDecide(ctx context.Context, input *DecideInput) (*OutcomeOutput, error) {
	d := domain.Decision{Action: input.Body.Action, CandidateIndex: input.Body.CandidateIndex}
	outcome, err := s.services.Sessions.Decide(ctx, input.ID, input.RecordID, d)
	if err != nil {
		return nil, err
	}
	return &OutcomeOutput{Body: toOutcomeResponse(outcome)}, nil
}

func (s *Server) handleSkip(ctx context.Context, input *RecordActionInput) (*MessageOutput, error) {
	if err := s.services.Sessions.Skip(ctx, input.ID, input.RecordID); err != nil {
		return nil, err
	}
	return &MessageOutput{Body: MessageResponse{Message: "Record moved to the end of the queue"}}, nil
}
