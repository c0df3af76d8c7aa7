package model

// UserProfile is a directory entry keyed by username.
type UserProfile struct {
	Username         string `json:"username"`
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
	ProfilePictureID string `json:"profilePictureId,omitempty"`
}

// Message is a single ledger record. ID is client supplied; UnixTime is assigned by
// the server in milliseconds.
type Message struct {
	ID             string `json:"id"`
	Text           string `json:"text"`
	SenderUsername string `json:"senderUsername"`
	UnixTime       int64  `json:"unixTime"`
}

// Conversation is one participant's index record. ID is the bare conversation id
// ("alice_bob"), without any storage prefix.
type Conversation struct {
	ID                   string   `json:"id"`
	Participants         []string `json:"participants"`
	LastModifiedUnixTime int64    `json:"lastModifiedUnixTime"`
}

// ConversationsInfo is the listing projection: the index record plus the other
// participant's profile.
type ConversationsInfo struct {
	ID                   string      `json:"id"`
	LastModifiedUnixTime int64       `json:"lastModifiedUnixTime"`
	Recipient            UserProfile `json:"recipient"`
}

// MessagesInfo is the listing projection of a message.
type MessagesInfo struct {
	Text           string `json:"text"`
	SenderUsername string `json:"senderUsername"`
	UnixTime       int64  `json:"unixTime"`
}

// Info strips the message down to its listing projection.
func (m Message) Info() MessagesInfo {
	return MessagesInfo{
		Text:           m.Text,
		SenderUsername: m.SenderUsername,
		UnixTime:       m.UnixTime,
	}
}
