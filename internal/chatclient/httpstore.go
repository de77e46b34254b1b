package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"bankadvisor/internal/models"
)

// HTTPStore talks to the advisor server's persistence endpoints. It satisfies
// both MessageStore and DocumentStore.
type HTTPStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPStore builds a store client for the given server base URL. The token
// is attached as a bearer credential on upload requests.
func NewHTTPStore(baseURL, token string, httpClient *http.Client) *HTTPStore {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPStore{baseURL: baseURL, token: token, httpClient: httpClient}
}

// CreateConversation opens a conversation record on the server.
func (s *HTTPStore) CreateConversation(ctx context.Context, id, userID string) error {
	payload, err := json.Marshal(map[string]string{"id": id, "user_id": userID})
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	return s.postJSON(ctx, s.baseURL+"/api/conversations", payload)
}

// SaveMessage appends a message to its conversation on the server.
func (s *HTTPStore) SaveMessage(ctx context.Context, msg models.Message) error {
	payload, err := json.Marshal(map[string]string{
		"role":    string(msg.Role),
		"content": msg.Content,
		"status":  string(msg.Status),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	url := fmt.Sprintf("%s/api/conversations/%s/messages", s.baseURL, msg.ConversationID)
	return s.postJSON(ctx, url, payload)
}

// Upload sends a multipart batch of files and returns the stored filenames.
func (s *HTTPStore) Upload(ctx context.Context, identity string, files []UploadFile) ([]string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, file := range files {
		part, err := writer.CreateFormFile("files", file.Name)
		if err != nil {
			return nil, fmt.Errorf("create form file: %w", err)
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, fmt.Errorf("write form file: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/uploads", &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("upload returned %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var parsed struct {
		Files []string `json:"files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	return parsed.Files, nil
}

func (s *HTTPStore) postJSON(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return nil
}
