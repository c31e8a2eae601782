package filter

import (
	"log/slog"
)

// Defaults returns the built-in configuration. Every valid stage is present;
// only find.query and update.reqData carry filters.
func Defaults() Config {
	cfg := Config{}
	for _, op := range Operations {
		cfg[op] = map[Stage][]Func{}
		for _, st := range stages[op] {
			cfg[op][st] = []Func{}
		}
	}
	cfg[OpFind][StageQuery] = []Func{QuerySpecialDirectives}
	cfg[OpUpdate][StageReqData] = []Func{StripIdentifiers}
	return cfg
}

// Merge returns a new configuration holding, for every operation and stage
// of builtins, the built-in filters followed by the overrides for the same
// slot. Overrides for slots absent from builtins are ignored.
func Merge(builtins, overrides Config) Config {
	out := make(Config, len(builtins))
	for op, byStage := range builtins {
		out[op] = make(map[Stage][]Func, len(byStage))
		for st, fns := range byStage {
			extra := overrides[op][st]
			merged := make([]Func, 0, len(fns)+len(extra))
			merged = append(merged, fns...)
			merged = append(merged, extra...)
			out[op][st] = merged
		}
	}

	for op, byStage := range overrides {
		for st, fns := range byStage {
			if _, ok := builtins[op][st]; ok || len(fns) == 0 {
				continue
			}
			slog.Debug("ignoring filters for unknown slot",
				"component", "filter",
				"operation", string(op),
				"stage", string(st),
				"count", len(fns),
			)
		}
	}
	return out
}
