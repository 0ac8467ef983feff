package core

import (
	"sort"

	"github.com/aretw0/introspection"
)

// OrchestratorState exposes internal state for observability.
type OrchestratorState struct {
	TransactionsCategory string   `json:"transactions_category"`
	ActiveTransactions   []string `json:"active_transactions,omitempty"`
	Committed            int64    `json:"committed"`
	RolledBack           int64    `json:"rolled_back"`
	StoreType            string   `json:"store_type"`
	LogType              string   `json:"log_type"`
}

// State implements introspection.Introspectable.
func (o *Orchestrator) State() any {
	o.mu.RLock()
	defer o.mu.RUnlock()

	active := make([]string, 0, len(o.active))
	for id := range o.active {
		active = append(active, id)
	}
	sort.Strings(active)

	return OrchestratorState{
		TransactionsCategory: o.category,
		ActiveTransactions:   active,
		Committed:            o.committed,
		RolledBack:           o.rolledBack,
		StoreType:            componentType(o.store, "store"),
		LogType:              componentType(o.log, "audit-log"),
	}
}

// ComponentType implements introspection.Component.
func (o *Orchestrator) ComponentType() string {
	return "orchestrator"
}

func componentType(v any, fallback string) string {
	if comp, ok := v.(introspection.Component); ok {
		return comp.ComponentType()
	}
	return fallback
}

var _ introspection.Introspectable = (*Orchestrator)(nil)
var _ introspection.Component = (*Orchestrator)(nil)
