// Package render calls the card render service that turns ID card details into a PNG.
package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"funquiz-service/internal/domain"
)

const (
	// DefaultProfileTimeout bounds the profile image download.
	DefaultProfileTimeout = 5 * time.Second
	maxProfileBytes       = 5 << 20
	maxImageBytes         = 20 << 20
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// Client renders cards through the render service.
type Client struct {
	log            *slog.Logger
	endpoint       string
	http           *http.Client
	defaultProfile string
	profileTimeout time.Duration
}

// New builds a client. defaultProfile is the data URL used when no profile image is given or it
// cannot be loaded.
func New(log *slog.Logger, endpoint, defaultProfile string, httpClient *http.Client) *Client {
	if log == nil {
		log = slog.Default()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		log:            log,
		endpoint:       endpoint,
		http:           httpClient,
		defaultProfile: defaultProfile,
		profileTimeout: DefaultProfileTimeout,
	}
}

type renderRequest struct {
	Details    domain.CardDetails `json:"details"`
	ProfilePic string             `json:"profilePic"`
}

// Render returns the PNG bytes of the card. profileImage may be a data URL or an http(s) URL.
func (c *Client) Render(ctx context.Context, details domain.CardDetails, profileImage string) ([]byte, error) {
	raw, err := json.Marshal(renderRequest{Details: details, ProfilePic: c.profile(ctx, profileImage)})
	if err != nil {
		return nil, fmt.Errorf("encode render request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: render: %v", domain.ErrUpstream, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("%w: render: status %d: %s", domain.ErrUpstream, res.StatusCode, strings.TrimSpace(string(msg)))
	}
	image, err := io.ReadAll(io.LimitReader(res.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read render response: %v", domain.ErrUpstream, err)
	}
	if !bytes.HasPrefix(image, pngSignature) {
		return nil, fmt.Errorf("%w: render service did not return a png", domain.ErrUpstream)
	}
	return image, nil
}

// profile resolves the profile image to a data URL. Any failure falls back to the default image.
func (c *Client) profile(ctx context.Context, src string) string {
	switch {
	case src == "":
		return c.defaultProfile
	case strings.HasPrefix(src, "data:"):
		return src
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		dataURL, err := c.fetchProfile(ctx, src)
		if err != nil {
			c.log.Warn("profile image unavailable, using default", "src", src, "err", err)
			return c.defaultProfile
		}
		return dataURL
	default:
		c.log.Warn("unsupported profile image source, using default", "src", src)
		return c.defaultProfile
	}
}

func (c *Client) fetchProfile(ctx context.Context, src string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.profileTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", res.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(res.Body, maxProfileBytes))
	if err != nil {
		return "", err
	}
	contentType := res.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("not an image: %s", contentType)
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
