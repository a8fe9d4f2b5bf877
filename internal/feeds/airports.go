package feeds

import (
	"context"
	"fmt"

	"github.com/yegors/landing-tracker/internal/landing"
)

// FetchAirports reads the known airports from a JSON endpoint serving
// {"data": [{"name", "latitude", "longitude"}]}
func FetchAirports(ctx context.Context, client *Client, rawURL string) ([]landing.Airport, error) {
	var resp struct {
		Data []landing.Airport `json:"data"`
	}
	if err := client.GetJSON(ctx, rawURL, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch airports: %w", err)
	}

	airports := make([]landing.Airport, 0, len(resp.Data))
	for _, a := range resp.Data {
		a.Name = landing.NormalizeAirport(a.Name)
		if a.Name == "" {
			continue
		}
		airports = append(airports, a)
	}
	if len(airports) == 0 {
		return nil, fmt.Errorf("no airports returned by %s", rawURL)
	}
	return airports, nil
}
