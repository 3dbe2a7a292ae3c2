package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dyike/CortexQuant/models"
)

// loadHoldings reads a holdings file of the form
// {"cash": 100000, "positions": {"600519": {"quantity": 100, "avg_cost": 1500}}}.
func loadHoldings(path string) (models.Holdings, error) {
	var h models.Holdings
	data, err := os.ReadFile(path)
	if err != nil {
		return h, fmt.Errorf("read holdings: %w", err)
	}
	if err := json.Unmarshal(data, &h); err != nil {
		return h, fmt.Errorf("parse holdings %s: %w", path, err)
	}
	if h.Cash < 0 {
		return h, fmt.Errorf("parse holdings %s: negative cash", path)
	}
	positions := make(map[string]models.Position, len(h.Positions))
	for code, p := range h.Positions {
		if p.Quantity < 0 {
			return h, fmt.Errorf("parse holdings %s: negative quantity for %s", path, code)
		}
		positions[strings.ToUpper(strings.TrimSpace(code))] = p
	}
	h.Positions = positions
	return h, nil
}
