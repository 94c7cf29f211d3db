package api

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/geoproapp/geopro-server/internal/domain"
	"github.com/geoproapp/geopro-server/internal/pipeline"
	"github.com/geoproapp/geopro-server/internal/service"
)

func (s *Server) registerSessionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "createSession",
		Method:        http.MethodPost,
		Path:          "/api/v1/sessions",
		Summary:       "Create session",
		Description:   "Starts matching the given records in the background",
		Tags:          []string{"Sessions"},
		DefaultStatus: http.StatusCreated,
		Middlewares:   huma.Middlewares{s.limitSessionCreation},
	}, s.handleCreateSession)

	huma.Register(s.api, huma.Operation{
		OperationID:   "importSession",
		Method:        http.MethodPost,
		Path:          "/api/v1/sessions/import",
		Summary:       "Import session",
		Description:   "Creates a session from a GeoJSON FeatureCollection or a JSON array of records",
		Tags:          []string{"Sessions"},
		DefaultStatus: http.StatusCreated,
		MaxBodyBytes:  MaxImportSize,
		Middlewares:   huma.Middlewares{s.limitSessionCreation},
	}, s.handleImportSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "listSessions",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions",
		Summary:     "List sessions",
		Description: "Returns all sessions, newest first",
		Tags:        []string{"Sessions"},
	}, s.handleListSessions)

	huma.Register(s.api, huma.Operation{
		OperationID: "getSession",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}",
		Summary:     "Get session",
		Description: "Returns a session with statistics and progress",
		Tags:        []string{"Sessions"},
	}, s.handleGetSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "cancelSession",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/cancel",
		Summary:     "Cancel session",
		Description: "Stops processing; resolved records are kept for a partial export",
		Tags:        []string{"Sessions"},
	}, s.handleCancelSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteSession",
		Method:      http.MethodDelete,
		Path:        "/api/v1/sessions/{id}",
		Summary:     "Delete session",
		Description: "Stops and removes a session with all its records",
		Tags:        []string{"Sessions"},
	}, s.handleDeleteSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "listSessionRecords",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}/records",
		Summary:     "List records",
		Description: "Returns every record of a session with its state, matches and outcome",
		Tags:        []string{"Sessions"},
	}, s.handleListRecords)
}

// === DTOs ===

// SessionResponse contains session data in API responses.
type SessionResponse struct {
	ID        string               `json:"id" doc:"Session ID"`
	Name      string               `json:"name" doc:"Session name"`
	Policy    string               `json:"policy" doc:"Resolution policy, e.g. best or threshold:0.8"`
	Status    domain.SessionStatus `json:"status" doc:"running, reviewing, ready, finalized or cancelled"`
	CreatedAt time.Time            `json:"created_at" doc:"Creation time"`
	UpdatedAt time.Time            `json:"updated_at" doc:"Last update time"`
	Stats     *domain.SessionStats `json:"stats,omitempty" doc:"Record counts by state and outcome"`
	Queued    int                  `json:"queued" doc:"Records waiting for a decision"`
	Active    bool                 `json:"active" doc:"Whether the session is loaded for processing or review"`
	Progress  *pipeline.Progress   `json:"progress,omitempty" doc:"Pipeline progress of the current run"`
}

// SessionOutput wraps a session for Huma.
type SessionOutput struct {
	Body SessionResponse
}

// ListSessionsResponse contains a list of sessions.
type ListSessionsResponse struct {
	Sessions []SessionResponse `json:"sessions" doc:"Sessions, newest first"`
}

// ListSessionsOutput wraps the session list for Huma.
type ListSessionsOutput struct {
	Body ListSessionsResponse
}

// RecordRequest is a source record in a create request.
type RecordRequest struct {
	ID           string   `json:"id,omitempty" doc:"Record ID, generated when empty"`
	ListName     string   `json:"list_name,omitempty" doc:"Saved list, defaults to the session name"`
	DisplayName  string   `json:"display_name" doc:"Name as saved"`
	Lat          *float64 `json:"lat,omitempty" doc:"Latitude"`
	Lon          *float64 `json:"lon,omitempty" doc:"Longitude"`
	Address      string   `json:"address,omitempty" doc:"Address"`
	CategoryHint string   `json:"category_hint,omitempty" doc:"Free-text category hint"`
	Notes        string   `json:"notes,omitempty" doc:"User notes, HTML allowed"`
}

// CreateSessionRequest is the request body for creating a session.
type CreateSessionRequest struct {
	Name    string          `json:"name,omitempty" maxLength:"200" doc:"Session name"`
	Policy  string          `json:"policy,omitempty" doc:"best, all, threshold or threshold:<t>; server default when empty"`
	Records []RecordRequest `json:"records" minItems:"1" doc:"Records to match"`
}

// CreateSessionInput wraps the create request for Huma.
type CreateSessionInput struct {
	Body CreateSessionRequest
}

// ImportSessionInput carries a raw place export.
type ImportSessionInput struct {
	Name    string `query:"name" doc:"Session name, also the default list name"`
	Policy  string `query:"policy" doc:"Resolution policy"`
	RawBody []byte
}

// SessionIDInput addresses a session.
type SessionIDInput struct {
	ID string `path:"id" doc:"Session ID"`
}

// MessageResponse is a plain confirmation.
type MessageResponse struct {
	Message string `json:"message" doc:"Result message"`
}

// MessageOutput wraps a message for Huma.
type MessageOutput struct {
	Body MessageResponse
}

// ListRecordsResponse contains the records of a session.
type ListRecordsResponse struct {
	Records []EntryResponse `json:"records" doc:"Records in source order"`
}

// ListRecordsOutput wraps the record list for Huma.
type ListRecordsOutput struct {
	Body ListRecordsResponse
}

// === Handlers ===

func (s *Server) handleCreateSession(ctx context.Context, input *CreateSessionInput) (*SessionOutput, error) {
	records := make([]domain.SourceRecord, len(input.Body.Records))
	for i, r := range input.Body.Records {
		list := r.ListName
		if list == "" {
			list = input.Body.Name
		}
		if list == "" {
			list = "Saved places"
		}
		records[i] = domain.SourceRecord{
			ID:           r.ID,
			ListName:     list,
			DisplayName:  r.DisplayName,
			Coordinates:  domain.Coordinates{Lat: orNaN(r.Lat), Lon: orNaN(r.Lon)},
			Address:      r.Address,
			CategoryHint: r.CategoryHint,
			Notes:        r.Notes,
			Seq:          i,
		}
	}

	view, err := s.services.Sessions.Create(ctx, service.CreateSessionRequest{
		Name:    input.Body.Name,
		Policy:  input.Body.Policy,
		Records: records,
	})
	if err != nil {
		return nil, err
	}
	return &SessionOutput{Body: toSessionResponse(view)}, nil
}

func (s *Server) handleImportSession(ctx context.Context, input *ImportSessionInput) (*SessionOutput, error) {
	if len(input.RawBody) == 0 {
		return nil, huma.Error400BadRequest("request body is empty")
	}
	view, err := s.services.Sessions.Import(ctx, input.Name, input.Policy, bytes.NewReader(input.RawBody))
	if err != nil {
		return nil, err
	}
	return &SessionOutput{Body: toSessionResponse(view)}, nil
}

func (s *Server) handleListSessions(ctx context.Context, _ *struct{}) (*ListSessionsOutput, error) {
	sessions, err := s.services.Sessions.List(ctx)
	if err != nil {
		return nil, err
	}

	resp := make([]SessionResponse, len(sessions))
	for i, sess := range sessions {
		resp[i] = toSessionResponse(&service.SessionView{Session: *sess})
	}
	return &ListSessionsOutput{Body: ListSessionsResponse{Sessions: resp}}, nil
}

func (s *Server) handleGetSession(ctx context.Context, input *SessionIDInput) (*SessionOutput, error) {
	view, err := s.services.Sessions.Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &SessionOutput{Body: toSessionResponse(view)}, nil
}

func (s *Server) handleCancelSession(ctx context.Context, input *SessionIDInput) (*SessionOutput, error) {
	if err := s.services.Sessions.Cancel(ctx, input.ID); err != nil {
		return nil, err
	}
	return s.handleGetSession(ctx, input)
}

func (s *Server) handleDeleteSession(ctx context.Context, input *SessionIDInput) (*MessageOutput, error) {
	if err := s.services.Sessions.Delete(ctx, input.ID); err != nil {
		return nil, err
	}
	return &MessageOutput{Body: MessageResponse{Message: "Session deleted"}}, nil
}

func (s *Server) handleListRecords(ctx context.Context, input *SessionIDInput) (*ListRecordsOutput, error) {
	entries, err := s.services.Sessions.Records(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	resp := make([]EntryResponse, len(entries))
	for i, e := range entries {
		resp[i] = toEntryResponse(e)
	}
	return &ListRecordsOutput{Body: ListRecordsResponse{Records: resp}}, nil
}

func toSessionResponse(v *service.SessionView) SessionResponse {
	resp := SessionResponse{
		ID:        v.Session.ID,
		Name:      v.Session.Name,
		Policy:    v.Session.Policy.String(),
		Status:    v.Session.Status,
		CreatedAt: v.Session.CreatedAt,
		UpdatedAt: v.Session.UpdatedAt,
		Queued:    v.Queued,
		Active:    v.Active,
		Progress:  v.Progress,
	}
	if v.Stats.Total > 0 {
		stats := v.Stats
		resp.Stats = &stats
	}
	return resp
}
