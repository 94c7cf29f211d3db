package api

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/geoproapp/geopro-server/internal/category"
	"github.com/geoproapp/geopro-server/internal/export"
	"github.com/geoproapp/geopro-server/internal/service"
)

func (s *Server) registerExportRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "exportSession",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/export",
		Summary:     "Export KML",
		Description: "Finalizes the session and returns the KML document. Fails with UNRESOLVED_AT_FINALIZATION while records are pending or queued, unless partial is set.",
		Tags:        []string{"Export"},
	}, s.handleExport)

	huma.Register(s.api, huma.Operation{
		OperationID: "listCategoryMisses",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}/misses",
		Summary:     "List category misses",
		Description: "Returns the tags and hints that had no category rule or icon in the last export",
		Tags:        []string{"Export"},
	}, s.handleListMisses)
}

// === DTOs ===

// ExportInput selects the export mode.
type ExportInput struct {
	ID       string `path:"id" doc:"Session ID"`
	Partial  bool   `query:"partial" doc:"Export only resolved records and keep the session open"`
	KeepHTML bool   `query:"keep_html" doc:"Keep HTML in notes instead of converting to Markdown"`
}

// MissesResponse lists category misses.
type MissesResponse struct {
	Misses []category.Miss `json:"misses" doc:"Misses, most frequent first"`
}

// MissesOutput wraps the misses for Huma.
type MissesOutput struct {
	Body MissesResponse
}

// === Handlers ===

func (s *Server) handleExport(ctx context.Context, input *ExportInput) (*huma.StreamResponse, error) {
	res, err := s.services.Sessions.Export(ctx, input.ID, service.ExportOptions{
		Partial:  input.Partial,
		KeepHTML: input.KeepHTML,
	})
	if err != nil {
		return nil, err
	}

	// Encode before streaming so that an encoding error is still reported
	// with a proper status.
	var buf bytes.Buffer
	if err := export.Encode(&buf, res.Document); err != nil {
		return nil, err
	}

	filename := exportFilename(res.Document.Name, input.ID)
	return &huma.StreamResponse{
		Body: func(hctx huma.Context) {
			hctx.SetHeader("Content-Type", ContentTypeKML)
			hctx.SetHeader("Content-Disposition", `attachment; filename="`+filename+`"`)
			hctx.SetHeader("Cache-Control", CacheNoStore)
			if res.Partial {
				hctx.SetHeader("X-Export-Partial", "true")
			}
			if _, err := hctx.BodyWriter().Write(buf.Bytes()); err != nil {
				s.logger.Warn("failed to write export", "session_id", input.ID, "error", err)
			}
		},
	}, nil
}

func (s *Server) handleListMisses(ctx context.Context, input *SessionIDInput) (*MissesOutput, error) {
	misses, err := s.services.Sessions.Misses(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if misses == nil {
		misses = []category.Miss{}
	}
	return &MissesOutput{Body: MissesResponse{Misses: misses}}, nil
}

func exportFilename(name, fallback string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		default:
			return -1
		}
	}, name)
	if clean == "" {
		clean = fallback
	}
	return clean + ".kml"
}
