package dto

// UploadImageResponse describes a stored item photo.
type UploadImageResponse struct {
	URL    string `json:"url"`
	MIME   string `json:"mime"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Size   int    `json:"size"`
}

// NotificationTicketResponse hands a short-lived websocket ticket to the client.
type NotificationTicketResponse struct {
	Ticket    string `json:"ticket"`
	ExpiresAt string `json:"expires_at"`
}
