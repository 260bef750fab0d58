package command

import (
	"strings"

	"github.com/google/uuid"
)

// Mutation is a dashboard-side domain change before encoding: which entity
// changed, how, and with what data. The encoder resolves where it goes.
type Mutation struct {
	Operation Operation

	// Entity names the domain collection (roster, inventory, deals, mail).
	// It is used to resolve the sheet tab when Target is not set explicitly.
	Entity string

	// Target overrides tab resolution entirely when set.
	Target string

	// SpreadsheetID overrides the scope's remote store when set.
	SpreadsheetID string

	Record           map[string]any
	Records          []map[string]any
	Values           []any
	Grid             [][]any
	RowIndex         *int
	MatchColumn      string
	MatchValue       string
	MatchColumnIndex *int
}

// ScopeConfig maps one scope (a sale event) to its remote store and tab names.
type ScopeConfig struct {
	ScopeID       string            `json:"scopeId"`
	SpreadsheetID string            `json:"spreadsheetId,omitempty"`
	Targets       map[string]string `json:"targets,omitempty"`
}

// Encoder builds command payloads from domain mutations. It is pure: scope
// configuration is passed in by the caller, and Encode performs no I/O.
type Encoder struct {
	// DefaultSpreadsheetID is the process-wide remote store used when a
	// scope has no configured override.
	DefaultSpreadsheetID string

	// DefaultTargets maps entity names to sheet tabs when the scope config
	// carries no override. Mirrors the workbook layout of the system of
	// record (roster, inventory, deals, mail).
	DefaultTargets map[string]string
}

// DefaultTargets returns the stock entity-to-tab mapping of the source
// workbook.
func DefaultTargets() map[string]string {
	return map[string]string{
		"roster":    "Roster & Tables",
		"inventory": "INVENTORY",
		"deals":     "DEAL LOG",
		"mail":      "MAIL TRACKING",
	}
}

// Encode resolves the remote target for a mutation within a scope and
// assembles the command payload. It fails only on malformed input.
func (e *Encoder) Encode(m Mutation, cfg ScopeConfig) (Command, error) {
	cmd := Command{
		ID:               uuid.NewString(),
		Operation:        m.Operation,
		Target:           e.resolveTarget(m, cfg),
		SpreadsheetID:    e.resolveSpreadsheet(m, cfg),
		ScopeID:          cfg.ScopeID,
		Record:           m.Record,
		Records:          m.Records,
		Values:           m.Values,
		Grid:             m.Grid,
		RowIndex:         m.RowIndex,
		MatchColumn:      m.MatchColumn,
		MatchValue:       m.MatchValue,
		MatchColumnIndex: m.MatchColumnIndex,
	}
	if err := cmd.Validate(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

func (e *Encoder) resolveTarget(m Mutation, cfg ScopeConfig) string {
	if target := strings.TrimSpace(m.Target); target != "" {
		return target
	}
	entity := strings.ToLower(strings.TrimSpace(m.Entity))
	if entity == "" {
		return ""
	}
	if target, ok := cfg.Targets[entity]; ok && strings.TrimSpace(target) != "" {
		return target
	}
	if e != nil {
		if target, ok := e.DefaultTargets[entity]; ok {
			return target
		}
	}
	return ""
}

func (e *Encoder) resolveSpreadsheet(m Mutation, cfg ScopeConfig) string {
	if id := strings.TrimSpace(m.SpreadsheetID); id != "" {
		return id
	}
	if id := strings.TrimSpace(cfg.SpreadsheetID); id != "" {
		return id
	}
	if e == nil {
		return ""
	}
	return strings.TrimSpace(e.DefaultSpreadsheetID)
}
