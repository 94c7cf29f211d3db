package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/geoproapp/geopro-server/internal/category"
	"github.com/geoproapp/geopro-server/internal/domain"
)

func (s *Server) registerCategoryRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getCategoryTable",
		Method:      http.MethodGet,
		Path:        "/api/v1/categories",
		Summary:     "Get category table",
		Description: "Returns the version and size of the category table in use",
		Tags:        []string{"Categories"},
	}, s.handleGetCategoryTable)

	huma.Register(s.api, huma.Operation{
		OperationID: "classify",
		Method:      http.MethodPost,
		Path:        "/api/v1/categories/classify",
		Summary:     "Classify",
		Description: "Assigns a category and icon to a tag set, or to a hint when no tags are given",
		Tags:        []string{"Categories"},
	}, s.handleClassify)
}

// === DTOs ===

// CategoryTableResponse describes the loaded table.
type CategoryTableResponse struct {
	Version string `json:"version" doc:"Content hash of the rule, icon and hint sources"`
	Rules   int    `json:"rules" doc:"Number of type rules"`
}

// CategoryTableOutput wraps the table description for Huma.
type CategoryTableOutput struct {
	Body CategoryTableResponse
}

// ClassifyRequest is the request body for classify.
type ClassifyRequest struct {
	Tags map[string]string `json:"tags,omitempty" doc:"OSM tags of a matched feature"`
	Hint string            `json:"hint,omitempty" doc:"Category hint of an unmatched place"`
}

// ClassifyInput wraps the classify request for Huma.
type ClassifyInput struct {
	Body ClassifyRequest
}

// ClassifyOutput wraps the assignment for Huma.
type ClassifyOutput struct {
	Body category.Assignment
}

// === Handlers ===

func (s *Server) handleGetCategoryTable(_ context.Context, _ *struct{}) (*CategoryTableOutput, error) {
	t := s.services.Categories.Table()
	return &CategoryTableOutput{Body: CategoryTableResponse{Version: t.Version(), Rules: t.RuleCount()}}, nil
}

func (s *Server) handleClassify(_ context.Context, input *ClassifyInput) (*ClassifyOutput, error) {
	if len(input.Body.Tags) == 0 && input.Body.Hint == "" {
		return nil, huma.Error400BadRequest("tags or hint is required")
	}

	rec := domain.SourceRecord{CategoryHint: input.Body.Hint}
	outcome := domain.Fallback(domain.ResolvedAuto)
	if len(input.Body.Tags) > 0 {
		outcome = domain.Matched(domain.MatchResult{
			Candidate: domain.Candidate{Tags: input.Body.Tags},
		}, domain.ResolvedAuto)
	}
	return &ClassifyOutput{Body: s.services.Categories.Map(outcome, rec)}, nil
}
