package utils

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/username/taxcore/src/logger"
)

type StateInfo struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	FIPS         string `json:"fips"`
	HasIncomeTax bool   `json:"has_income_tax"`
}

//go:embed data/us_states.json
var stateData []byte

var (
	stateMap    map[string]StateInfo
	stateByName map[string]StateInfo
	loadOnce    sync.Once
	loadError   error
)

func loadStates() error {
	loadOnce.Do(func() {
		var states []StateInfo
		if err := json.Unmarshal(stateData, &states); err != nil {
			loadError = fmt.Errorf("failed to unmarshal state data: %w", err)
			logger.L.Error("Failed to unmarshal state data", "error", err)
			return
		}
		stateMap = make(map[string]StateInfo, len(states))
		stateByName = make(map[string]StateInfo, len(states))
		for _, s := range states {
			stateMap[strings.ToUpper(s.Code)] = s
			stateByName[strings.ToUpper(s.Name)] = s
		}
		logger.L.Debug("State data loaded", "stateCount", len(stateMap))
	})
	return loadError
}

// LookupState resolves a two-letter code or a full state name.
func LookupState(codeOrName string) (StateInfo, bool) {
	if err := loadStates(); err != nil {
		return StateInfo{}, false
	}
	key := strings.ToUpper(strings.TrimSpace(codeOrName))
	if s, ok := stateMap[key]; ok {
		return s, true
	}
	s, ok := stateByName[key]
	return s, ok
}

// IsValidStateCode reports whether code is a US state or DC.
func IsValidStateCode(code string) bool {
	s, ok := LookupState(code)
	return ok && strings.EqualFold(s.Code, strings.TrimSpace(code))
}

// NormalizeStateCode maps "il", "Illinois" and "IL " to "IL". Unknown input
// returns an empty string.
func NormalizeStateCode(codeOrName string) string {
	s, ok := LookupState(codeOrName)
	if !ok {
		return ""
	}
	return s.Code
}
