// Package pinning pins card images and metadata to IPFS through Pinata.
package pinning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"funquiz-service/internal/domain"
)

// DefaultBaseURL is the Pinata API root.
const DefaultBaseURL = "https://api.pinata.cloud"

// Client is a Pinata API client authenticated with a JWT.
type Client struct {
	baseURL string
	jwt     string
	http    *http.Client
}

func New(baseURL, jwt string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), jwt: jwt, http: httpClient}
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

// PinFile uploads data as a multipart file and returns its IPFS hash.
func (c *Client) PinFile(ctx context.Context, name string, data []byte) (string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}
	return c.pin(ctx, "/pinning/pinFileToIPFS", form.FormDataContentType(), &body)
}

// PinJSON uploads v as the pinned JSON content and returns its IPFS hash.
func (c *Client) PinJSON(ctx context.Context, name string, v any) (string, error) {
	payload := struct {
		Content  any `json:"pinataContent"`
		Metadata struct {
			Name string `json:"name,omitempty"`
		} `json:"pinataMetadata"`
	}{Content: v}
	payload.Metadata.Name = name
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return c.pin(ctx, "/pinning/pinJSONToIPFS", "application/json", bytes.NewReader(raw))
}

func (c *Client) pin(ctx context.Context, path, contentType string, body io.Reader) (string, error) {
	if c.jwt == "" {
		return "", fmt.Errorf("%w: pinning credentials not configured", domain.ErrUpstream)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.jwt)
	req.Header.Set("Content-Type", contentType)

	res, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: pin %s: %v", domain.ErrUpstream, path, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return "", fmt.Errorf("%w: pin %s: status %d: %s", domain.ErrUpstream, path, res.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out pinResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode pin response: %v", domain.ErrUpstream, err)
	}
	if out.IpfsHash == "" {
		return "", fmt.Errorf("%w: pin %s returned no hash", domain.ErrUpstream, path)
	}
	return out.IpfsHash, nil
}
