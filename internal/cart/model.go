package cart

// Item is one line of the buyer's server-side cart. The server is the
// authority; this struct is only the client's decoded copy, including the
// denormalized display fields the backend computes.
type Item struct {
	ProductID    string  `json:"productId"`
	ProductName  string  `json:"productName,omitempty"`
	ProductPrice float64 `json:"productPrice"`
	Quantity     int     `json:"quantity"`
	TotalAmount  float64 `json:"totalAmount,omitempty"`
	ImageBase64  string  `json:"imageBase64,omitempty"`
}

// listResponse is the wire shape of both the buyer cart endpoint and the dev
// fallback endpoint.
type listResponse struct {
	Items       []Item  `json:"items"`
	TotalAmount float64 `json:"totalAmount,omitempty"`
}
