package dto

// CreateItemRequest is the listing draft submitted by a member.
type CreateItemRequest struct {
	Title       string   `json:"title" validate:"required,max=120"`
	Description string   `json:"description" validate:"required,max=2000"`
	Category    string   `json:"category" validate:"required"`
	Type        string   `json:"type" validate:"required,max=60"`
	Size        string   `json:"size" validate:"required,max=20"`
	Condition   string   `json:"condition" validate:"required"`
	Tags        []string `json:"tags" validate:"omitempty,max=20,dive,max=40"`
	Images      []string `json:"images" validate:"omitempty,dive,required,max=2048"`
	PointsValue int      `json:"points_value" validate:"required,gt=0"`
}

// CatalogQuery mirrors the public catalog query string.
type CatalogQuery struct {
	Search    string `form:"search"`
	Category  string `form:"category"`
	Condition string `form:"condition"`
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
}

// FeatureItemRequest toggles the featured flag of an item.
type FeatureItemRequest struct {
	Featured *bool `json:"featured" validate:"required"`
}
