package chatpb

import "time"

type Message struct {
	Id        uint64    `json:"id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type PostMessageRequest struct {
	Text string `json:"text"`
}

type PostMessageResponse struct {
	Message *Message `json:"message"`
}

type ListMessagesRequest struct{}

type ListMessagesResponse struct {
	Messages []*Message `json:"messages"`
}

type SearchMessagesRequest struct {
	Query string `json:"query"`
	Limit int32  `json:"limit"`
}

type SearchMessagesResponse struct {
	Messages []*Message `json:"messages"`
}

type SubscribeRequest struct{}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}
