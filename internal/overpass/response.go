package overpass

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/geoproapp/geopro-server/internal/domain"
)

type rawResponse struct {
	Remark   string       `json:"remark"`
	Elements []rawElement `json:"elements"`
}

// runtimeError reports timeouts and memory exhaustion, which Overpass
// returns inside a 200 response.
func (r rawResponse) runtimeError() error {
	if strings.Contains(r.Remark, "runtime error") && len(r.Elements) == 0 {
		return fmt.Errorf("%w: %s", ErrRuntime, r.Remark)
	}
	return nil
}

// checkBody validates a body before it is returned or cached.
func checkBody(body []byte) error {
	var resp rawResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedContent, err)
	}
	return resp.runtimeError()
}

type rawElement struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    *float64          `json:"lat"`
	Lon    *float64          `json:"lon"`
	Center *rawCenter        `json:"center"`
	Tags   map[string]string `json:"tags"`
}

type rawCenter struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ParseResponse converts an Overpass JSON body into candidates in response
// order, capped at maxResults (0 for no cap). Elements without a position
// are skipped.
func ParseResponse(body []byte, maxResults int) ([]domain.Candidate, error) {
	var resp rawResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	if err := resp.runtimeError(); err != nil {
		return nil, err
	}

	candidates := make([]domain.Candidate, 0, len(resp.Elements))
	for _, el := range resp.Elements {
		if maxResults > 0 && len(candidates) == maxResults {
			break
		}
		cand, ok := el.candidate()
		if !ok {
			continue
		}
		cand.Order = len(candidates)
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

func (el rawElement) candidate() (domain.Candidate, bool) {
	var pos domain.Coordinates
	switch {
	case el.Lat != nil && el.Lon != nil:
		pos = domain.Coordinates{Lat: *el.Lat, Lon: *el.Lon}
	case el.Center != nil:
		pos = domain.Coordinates{Lat: el.Center.Lat, Lon: el.Center.Lon}
	default:
		return domain.Candidate{}, false
	}

	kind := domain.FeatureKind(el.Type)
	switch kind {
	case domain.KindNode, domain.KindWay, domain.KindRelation:
	default:
		return domain.Candidate{}, false
	}

	return domain.Candidate{
		ExternalID:  strconv.FormatInt(el.ID, 10),
		Kind:        kind,
		Name:        el.Tags["name"],
		Coordinates: pos,
		Tags:        el.Tags,
	}, true
}
