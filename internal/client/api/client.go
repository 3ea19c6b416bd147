// Package api is the typed HTTP client for the DM core endpoints,
// embedded by the conversation controller. Transport is plain
// request/response; there is no socket or push channel.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"
)

var (
	// ErrNetwork transport-level failure, including request abort.
	// Callers roll back optimistic state on this.
	ErrNetwork = errors.New("network failure")
	// ErrUnauthorized the session token was rejected
	ErrUnauthorized = errors.New("unauthorized")
	// ErrKeyNotFound the user has no published public key
	ErrKeyNotFound = errors.New("no public key published")
)

// Message is the wire form of a direct message
type Message struct {
	ID          uint64       `json:"id"`
	SenderID    string       `json:"sender_id"`
	ReceiverID  string       `json:"receiver_id"`
	Content     string       `json:"content"`
	IsEncrypted bool         `json:"is_encrypted"`
	CreatedAt   time.Time    `json:"created_at"`
	ExpiresAt   time.Time    `json:"expires_at"`
	ReadAt      *time.Time   `json:"read_at,omitempty"`
	Attachments []Attachment `json:"attachments"`
}

// Attachment is the wire form of a message attachment
type Attachment struct {
	ID       uint64 `json:"id"`
	URL      string `json:"url"`
	FileType string `json:"file_type"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
}

// Peer carries the conversation peer's published key
type Peer struct {
	ID        string `json:"id"`
	PublicKey string `json:"public_key,omitempty"`
}

// Conversation is the fetch-conversation payload
type Conversation struct {
	Messages []Message `json:"messages"`
	User     Peer      `json:"user"`
}

// GroupMessage is the wire form of a group message
type GroupMessage struct {
	ID        uint64    `json:"id"`
	GroupID   uint64    `json:"group_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// FileUpload is an attachment to send
type FileUpload struct {
	FileName    string
	ContentType string
	Reader      io.Reader
}

// SendRequest carries one direct-message send
type SendRequest struct {
	Content     string
	IsEncrypted bool
	ClientToken string
	Attachments []FileUpload
}

// Client talks to the DM core API with a bearer session token
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates an API client. The token is the murmur session JWT.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// PublishPublicKey uploads the public key half, overwriting any prior
// key for this user.
func (c *Client) PublishPublicKey(ctx context.Context, publicKey string) (bool, error) {
	body, _ := json.Marshal(map[string]string{"public_key": publicKey})
	resp, err := c.do(ctx, http.MethodPost, "/api/users/me/public-key", "application/json", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, http.StatusOK); err != nil {
		return false, err
	}
	var out struct {
		Success bool `json:"success"`
		Rotated bool `json:"rotated"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return out.Rotated, nil
}

// GetPublicKey looks up another user's published key
func (c *Client) GetPublicKey(ctx context.Context, userID string) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/users/"+userID+"/public-key", "", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrKeyNotFound
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return "", err
	}
	var out struct {
		PublicKey string `json:"public_key"`
	}
	if err := decodeData(resp.Body, &out); err != nil {
		return "", err
	}
	return out.PublicKey, nil
}

// SendMessage creates a direct message via multipart form
func (c *Client) SendMessage(ctx context.Context, recipientID string, req SendRequest) (*Message, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	_ = form.WriteField("content", req.Content)
	encrypted := "0"
	if req.IsEncrypted {
		encrypted = "1"
	}
	_ = form.WriteField("is_encrypted", encrypted)
	if req.ClientToken != "" {
		_ = form.WriteField("client_token", req.ClientToken)
	}
	for _, upload := range req.Attachments {
		part, err := form.CreateFormFile("attachments[]", upload.FileName)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
		}
		if _, err := io.Copy(part, upload.Reader); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/messages/"+recipientID, form.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// 200 means the idempotency token was already seen and the original
	// message is echoed back.
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	var out struct {
		Message Message `json:"message"`
	}
	if err := decodeData(resp.Body, &out); err != nil {
		return nil, err
	}
	return &out.Message, nil
}

// FetchConversation returns the active window with a peer plus their
// current public key.
func (c *Client) FetchConversation(ctx context.Context, peerID string) (*Conversation, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/messages/"+peerID, "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	var out Conversation
	if err := decodeData(resp.Body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteMessage removes a sent message
func (c *Client) DeleteMessage(ctx context.Context, id uint64) error {
	resp, err := c.do(ctx, http.MethodDelete, "/api/messages/"+strconv.FormatUint(id, 10), "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp, http.StatusNoContent)
}

// SendGroupMessage creates a plaintext group message. Encryption is
// refused client-side before this call is ever made.
func (c *Client) SendGroupMessage(ctx context.Context, groupID uint64, content string) (*GroupMessage, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	_ = form.WriteField("content", content)
	_ = form.WriteField("is_encrypted", "0")
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	path := "/api/groups/" + strconv.FormatUint(groupID, 10) + "/messages"
	resp, err := c.do(ctx, http.MethodPost, path, form.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, http.StatusCreated); err != nil {
		return nil, err
	}
	var out struct {
		Message GroupMessage `json:"message"`
	}
	if err := decodeData(resp.Body, &out); err != nil {
		return nil, err
	}
	return &out.Message, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Context cancellation (request abort) takes the same path as any
		// transport failure so callers run one rollback.
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return resp, nil
}

func checkStatus(resp *http.Response, want int) error {
	if resp.StatusCode == want {
		return nil
	}
	return statusError(resp)
}

func statusError(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	default:
		return fmt.Errorf("%w: unexpected status %d", ErrNetwork, resp.StatusCode)
	}
}

func decodeData(r io.Reader, out interface{}) error {
	var env envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if env.Error != nil {
		return fmt.Errorf("%w: %s", ErrNetwork, env.Error.Message)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return nil
}
