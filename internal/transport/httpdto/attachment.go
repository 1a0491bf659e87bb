package httpdto

// PresignAttachmentRequest is used for POST /attachments/presign
type PresignAttachmentRequest struct {
	FileName    string `json:"file_name" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
	Size        int64  `json:"size" binding:"required"`
}

type PresignAttachmentResponse struct {
	Key       string            `json:"key"`
	UploadURL string            `json:"upload_url"`
	Headers   map[string]string `json:"headers,omitempty"`
	FileURL   string            `json:"file_url"`
	Name      string            `json:"name"`
	Size      int64             `json:"size"`
}

// PresenceResponse is returned by GET /presence/:userId
type PresenceResponse struct {
	UserID   string `json:"user_id"`
	Online   bool   `json:"online"`
	LastSeen string `json:"last_seen,omitempty"`
}

type OnlineUsersResponse struct {
	UserIDs []string `json:"user_ids"`
}
