package dto

type SyncStatusResponse struct {
	Status  string   `json:"status"`
	Online  bool     `json:"online"`
	Pending []string `json:"pending"`
}

type SyncResultResponse struct {
	Synced  int      `json:"synced"`
	Pending []string `json:"pending"`
}

// WSEvent is the envelope for every websocket message.
type WSEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
