package models

// Allocation is the allocator's verdict for one signal against one capital snapshot.
type Allocation struct {
	Accepted  bool         `json:"accepted"`
	Quantity  int64        `json:"quantity"`
	Requested int64        `json:"requested"`
	Shrunk    bool         `json:"shrunk"`
	Reason    RejectReason `json:"reason,omitempty"` // first failing rule, set on shrink or reject
}

// TradeDecision is the outcome of evaluateAndOpen.
type TradeDecision struct {
	Allocation Allocation    `json:"allocation"`
	Trade      *Trade        `json:"trade,omitempty"`
	Capital    *CapitalState `json:"capital"`
}
