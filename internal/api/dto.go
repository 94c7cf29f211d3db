package api

import (
	"math"

	"github.com/geoproapp/geopro-server/internal/domain"
)

// JSON cannot carry NaN, so missing coordinates are rendered as null.

// RecordResponse is a source record in API responses.
type RecordResponse struct {
	ID           string   `json:"id" doc:"Record ID"`
	ListName     string   `json:"list_name" doc:"Saved list the place belongs to"`
	DisplayName  string   `json:"display_name" doc:"Name as saved"`
	Lat          *float64 `json:"lat" doc:"Latitude, null when unknown"`
	Lon          *float64 `json:"lon" doc:"Longitude, null when unknown"`
	Address      string   `json:"address,omitempty" doc:"Address as saved"`
	CategoryHint string   `json:"category_hint,omitempty" doc:"Free-text category hint"`
	Notes        string   `json:"notes,omitempty" doc:"User notes"`
	Seq          int      `json:"seq" doc:"Position in the source export"`
}

// CandidateResponse is a retrieved feature.
type CandidateResponse struct {
	Ref  string            `json:"ref" doc:"OSM reference, e.g. node/123"`
	Name string            `json:"name,omitempty" doc:"Feature name"`
	Lat  float64           `json:"lat" doc:"Latitude"`
	Lon  float64           `json:"lon" doc:"Longitude"`
	Tags map[string]string `json:"tags,omitempty" doc:"OSM tags"`
	URL  string            `json:"url" doc:"openstreetmap.org page"`
}

// MatchResponse is a scored candidate.
type MatchResponse struct {
	Candidate CandidateResponse     `json:"candidate"`
	Score     float64               `json:"score" doc:"Composite score in [0,1]"`
	Breakdown domain.ScoreBreakdown `json:"breakdown" doc:"Per-factor scores"`
}

// OutcomeResponse is the resolution of a record.
type OutcomeResponse struct {
	Kind      domain.OutcomeKind `json:"kind" doc:"matched or fallback"`
	Candidate *CandidateResponse `json:"candidate,omitempty" doc:"Accepted candidate when matched"`
	Score     float64            `json:"score" doc:"Score of the accepted candidate"`
	By        domain.Resolver    `json:"by" doc:"auto or human"`
}

// EntryResponse is a record with its state within a session.
type EntryResponse struct {
	Record         RecordResponse     `json:"record"`
	State          domain.RecordState `json:"state" doc:"pending, scored, resolved or rejected"`
	Matches        []MatchResponse    `json:"matches,omitempty"`
	Outcome        *OutcomeResponse   `json:"outcome,omitempty"`
	RejectedReason string             `json:"rejected_reason,omitempty"`
	RetrievalError string             `json:"retrieval_error,omitempty"`
}

// DecisionRequestResponse is one entry of the review queue.
type DecisionRequestResponse struct {
	Record     RecordResponse  `json:"record"`
	Candidates []MatchResponse `json:"candidates" doc:"Ranked candidates to choose from"`
	Remaining  int             `json:"remaining" doc:"Queued requests including this one"`
}

func optional(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func toRecordResponse(r domain.SourceRecord) RecordResponse {
	return RecordResponse{
		ID:           r.ID,
		ListName:     r.ListName,
		DisplayName:  r.DisplayName,
		Lat:          optional(r.Coordinates.Lat),
		Lon:          optional(r.Coordinates.Lon),
		Address:      r.Address,
		CategoryHint: r.CategoryHint,
		Notes:        r.Notes,
		Seq:          r.Seq,
	}
}

func toCandidateResponse(c domain.Candidate) CandidateResponse {
	return CandidateResponse{
		Ref:  c.Ref(),
		Name: c.Name,
		Lat:  c.Coordinates.Lat,
		Lon:  c.Coordinates.Lon,
		Tags: c.Tags,
		URL:  c.URL(),
	}
}

func toMatchResponses(ms []domain.MatchResult) []MatchResponse {
	out := make([]MatchResponse, len(ms))
	for i, m := range ms {
		b := m.Breakdown
		if math.IsNaN(b.DistanceMeters) {
			b.DistanceMeters = -1
		}
		out[i] = MatchResponse{Candidate: toCandidateResponse(m.Candidate), Score: m.Score, Breakdown: b}
	}
	return out
}

func toOutcomeResponse(o domain.Outcome) OutcomeResponse {
	resp := OutcomeResponse{Kind: o.Kind, Score: o.Score, By: o.By}
	if o.IsMatched() {
		c := toCandidateResponse(*o.Candidate)
		resp.Candidate = &c
	}
	return resp
}

func toEntryResponse(e domain.RecordEntry) EntryResponse {
	resp := EntryResponse{
		Record:         toRecordResponse(e.Record),
		State:          e.State,
		Matches:        toMatchResponses(e.Matches),
		RejectedReason: e.RejectedReason,
		RetrievalError: e.RetrievalError,
	}
	if e.Outcome != nil {
		o := toOutcomeResponse(*e.Outcome)
		resp.Outcome = &o
	}
	return resp
}

func toDecisionRequestResponse(req domain.DecisionRequest) DecisionRequestResponse {
	return DecisionRequestResponse{
		Record:     toRecordResponse(req.Record),
		Candidates: toMatchResponses(req.Candidates),
		Remaining:  req.Remaining,
	}
}
