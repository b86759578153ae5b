// SPDX-License-Identifier: EPL-2.0

package query

import "runcell/internal/engine"

// Handler adapts a Driver into an engine.Handler by running it through
// RunContract, so the registry built in cmd/runcell can register every
// query block type uniformly alongside the non-query handlers.
type Handler struct {
	Driver Driver
}

func (h Handler) Execute(ec *engine.ExecutionContext) {
	RunContract(ec, h.Driver)
}
