package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"colonytrack/internal/commodity"
	"colonytrack/internal/domain"
)

// Source fetches the authoritative community view of a star system's
// construction sites. Implementations must enforce their own bounded
// timeout; the merger treats any failure as "no external data".
type Source interface {
	FetchSystem(ctx context.Context, system string) ([]*domain.ConstructionSite, error)
}

// DefaultFetchTimeout bounds one external fetch when the caller does not
// configure a timeout.
const DefaultFetchTimeout = 10 * time.Second

// externalCommodity mirrors the community API's commodity shape.
type externalCommodity struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Required    int    `json:"required"`
	Provided    int    `json:"provided"`
	Payment     int    `json:"payment"`
}

// externalSite mirrors the community API's site shape.
type externalSite struct {
	MarketID      int64               `json:"marketId"`
	Name          string              `json:"name"`
	Type          string              `json:"type"`
	System        string              `json:"system"`
	SystemAddress int64               `json:"systemAddress"`
	Progress      float64             `json:"progress"`
	IsCompleted   bool                `json:"isCompleted"`
	IsFailed      bool                `json:"isFailed"`
	Commodities   []externalCommodity `json:"commodities"`
}

// HTTPSource fetches system snapshots from the community API over HTTP.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// Compile-time interface check.
var _ Source = (*HTTPSource)(nil)

// NewHTTPSource creates a source against baseURL. timeout bounds each
// fetch end to end; zero selects DefaultFetchTimeout.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &HTTPSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// FetchSystem retrieves all externally-known sites for one star system.
func (s *HTTPSource) FetchSystem(ctx context.Context, system string) ([]*domain.ConstructionSite, error) {
	endpoint := fmt.Sprintf("%s/v1/systems/%s/sites", s.baseURL, url.PathEscape(system))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch system %s: %w", system, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil // system unknown to the community API
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch system %s: unexpected status %d", system, resp.StatusCode)
	}

	var payload []externalSite
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode system %s: %w", system, err)
	}

	sites := make([]*domain.ConstructionSite, 0, len(payload))
	for _, e := range payload {
		sites = append(sites, e.toDomain())
	}
	return sites, nil
}

func (e *externalSite) toDomain() *domain.ConstructionSite {
	site := &domain.ConstructionSite{
		MarketID:             e.MarketID,
		StationName:          e.Name,
		StationType:          e.Type,
		StarSystem:           e.System,
		SystemAddress:        e.SystemAddress,
		Progress:             e.Progress,
		ConstructionComplete: e.IsCompleted,
		ConstructionFailed:   e.IsFailed,
		Source:               domain.SourceExternal,
	}
	for _, c := range e.Commodities {
		site.Commodities = append(site.Commodities, domain.Commodity{
			Name:      c.Name,
			LocalName: commodity.DisplayName(c.Name, c.DisplayName),
			Required:  c.Required,
			Provided:  c.Provided,
			Payment:   c.Payment,
		})
	}
	return site
}
