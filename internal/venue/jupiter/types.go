package jupiter

// quoteResponse is the wire shape of the quote endpoint. Amounts arrive as
// decimal strings in base units; priceImpactPct is a decimal fraction
// string (e.g. "0.0012" for 12 bps).
type quoteResponse struct {
	InputMint            string      `json:"inputMint"`
	InAmount             string      `json:"inAmount"`
	OutputMint           string      `json:"outputMint"`
	OutAmount            string      `json:"outAmount"`
	OtherAmountThreshold string      `json:"otherAmountThreshold"`
	SwapMode             string      `json:"swapMode"`
	SlippageBps          int64       `json:"slippageBps"`
	PriceImpactPct       string      `json:"priceImpactPct"`
	RoutePlan            []routeStep `json:"routePlan"`
	ContextSlot          uint64      `json:"contextSlot"`
}

type routeStep struct {
	SwapInfo swapInfo `json:"swapInfo"`
	Percent  int      `json:"percent"`
}

type swapInfo struct {
	AmmKey     string `json:"ammKey"`
	Label      string `json:"label"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
	FeeAmount  string `json:"feeAmount"`
	FeeMint    string `json:"feeMint"`
}

// swapRequest is the body of the swap-build endpoint.
type swapRequest struct {
	QuoteResponse   string `json:"quoteResponse"`
	UserPublicKey   string `json:"userPublicKey"`
	WrapUnwrapSOL   bool   `json:"wrapAndUnwrapSol"`
	DynamicSlippage bool   `json:"dynamicSlippage"`
}

// swapResponse is the wire shape of the swap-build endpoint.
type swapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}
