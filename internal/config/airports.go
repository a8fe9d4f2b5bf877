package config

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/yegors/landing-tracker/internal/landing"
)

// LoadAirportsCSV reads known airports from an OurAirports CSV (ident in column 1,
// latitude in column 4, longitude in column 5). When codes is non-empty only those
// idents are kept. Rows without usable coordinates are skipped.
func LoadAirportsCSV(path string, codes []string) ([]landing.Airport, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open airports file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("failed to read airports header: %w", err)
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read airports file: %w", err)
	}

	wanted := make(map[string]bool, len(codes))
	for _, code := range codes {
		wanted[strings.ToUpper(code)] = true
	}

	var airports []landing.Airport
	for _, record := range records {
		if len(record) < 6 {
			continue
		}

		ident := strings.TrimSpace(record[1])
		if ident == "" || (len(wanted) > 0 && !wanted[strings.ToUpper(ident)]) {
			continue
		}

		lat, err := strconv.ParseFloat(strings.TrimSpace(record[4]), 64)
		if err != nil {
			continue
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(record[5]), 64)
		if err != nil {
			continue
		}

		airports = append(airports, landing.Airport{Name: ident, Lat: lat, Lon: lon})
	}

	if len(airports) == 0 {
		return nil, fmt.Errorf("no airports found in %s", path)
	}
	return airports, nil
}
