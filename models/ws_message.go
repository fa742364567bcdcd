package models

// WSMessage is the envelope used on both websocket legs: the upstream
// room-scoped event channel and the local UI fan-out.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
