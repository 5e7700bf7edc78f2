package builtins

import "barsim/internal/strategy"

// Register adds every builtin strategy to r.
func Register(r *strategy.Registry) {
	r.Register("sma-cross", NewSMACrossFromParams)
	r.Register("scripted", NewScriptedFromParams)
}
