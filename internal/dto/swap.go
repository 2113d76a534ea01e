package dto

// CreateSwapRequest asks for an item either by direct swap or by points.
type CreateSwapRequest struct {
	Mode          string `json:"mode" validate:"required,oneof=direct points"`
	OfferedItemID string `json:"offered_item_id" validate:"omitempty,uuid"`
	Message       string `json:"message" validate:"max=1000"`
}

// SwapListQuery filters the caller's swap requests.
type SwapListQuery struct {
	Box      string `form:"box"`
	Status   string `form:"status"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}
