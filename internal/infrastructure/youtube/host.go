package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"TrackPublisher/internal/domain"
	"TrackPublisher/internal/ports"
)

// HostConfig describes the authenticated upload surface.
type HostConfig struct {
	APIBaseURL     string
	UploadBaseURL  string
	ClientID       string
	ClientSecret   string
	RefreshToken   string
	TokenURL       string
	RequestTimeout time.Duration
}

// HostClient implements the resumable upload, placement, status and delete calls.
type HostClient struct {
	apiBase    string
	uploadBase string
	client     *http.Client
	logger     *slog.Logger
}

var _ ports.HostPlatform = (*HostClient)(nil)

// NewHostClient builds a client whose requests carry an access token refreshed from the
// configured refresh token.
func NewHostClient(ctx context.Context, cfg HostConfig, logger *slog.Logger) (*HostClient, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, fmt.Errorf("youtube credentials missing (client id, secret and refresh token are required)")
	}
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
		Scopes:       []string{"https://www.googleapis.com/auth/youtube"},
	}
	httpClient := oauthCfg.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	httpClient.Timeout = cfg.RequestTimeout
	return NewHostClientWithHTTP(httpClient, cfg, logger), nil
}

// NewHostClientWithHTTP uses an already-authenticated HTTP client.
func NewHostClientWithHTTP(httpClient *http.Client, cfg HostConfig, logger *slog.Logger) *HostClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	apiBase := cfg.APIBaseURL
	if apiBase == "" {
		apiBase = "https://www.googleapis.com/youtube/v3"
	}
	uploadBase := cfg.UploadBaseURL
	if uploadBase == "" {
		uploadBase = "https://www.googleapis.com/upload/youtube/v3"
	}
	return &HostClient{
		apiBase:    strings.TrimSuffix(apiBase, "/"),
		uploadBase: strings.TrimSuffix(uploadBase, "/"),
		client:     httpClient,
		logger:     logger,
	}
}

type videoResource struct {
	Snippet struct {
		Title                string   `json:"title"`
		Description          string   `json:"description"`
		Tags                 []string `json:"tags,omitempty"`
		CategoryID           string   `json:"categoryId,omitempty"`
		DefaultLanguage      string   `json:"defaultLanguage,omitempty"`
		DefaultAudioLanguage string   `json:"defaultAudioLanguage,omitempty"`
	} `json:"snippet"`
	Status struct {
		PrivacyStatus           string `json:"privacyStatus"`
		SelfDeclaredMadeForKids bool   `json:"selfDeclaredMadeForKids"`
	} `json:"status"`
}

// OpenSession starts a resumable upload and returns the session URL.
func (h *HostClient) OpenSession(ctx context.Context, meta domain.Metadata, size int64) (string, error) {
	var body videoResource
	body.Snippet.Title = meta.Title
	body.Snippet.Description = meta.Description
	body.Snippet.Tags = meta.Tags
	body.Snippet.CategoryID = meta.CategoryID
	body.Snippet.DefaultLanguage = meta.Language
	body.Snippet.DefaultAudioLanguage = meta.Language
	body.Status.PrivacyStatus = meta.Privacy

	encoded, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal video resource: %w", err)
	}

	endpoint := h.uploadBase + "/videos?" + url.Values{
		"uploadType": {"resumable"},
		"part":       {"snippet,status"},
	}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Upload-Content-Length", strconv.FormatInt(size, 10))
	req.Header.Set("X-Upload-Content-Type", "video/mp4")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("open upload session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", decodeError(resp)
	}
	session := resp.Header.Get("Location")
	if session == "" {
		return "", fmt.Errorf("upload session response without location")
	}
	return session, nil
}

// SendChunk uploads bytes [offset, offset+len(chunk)) of a total-byte file.
func (h *HostClient) SendChunk(ctx context.Context, session string, chunk []byte, offset, total int64) (ports.ChunkResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session, bytes.NewReader(chunk))
	if err != nil {
		return ports.ChunkResult{}, fmt.Errorf("build request: %w", err)
	}
	req.ContentLength = int64(len(chunk))
	req.Header.Set("Content-Type", "video/mp4")
	if len(chunk) > 0 {
		req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+int64(len(chunk))-1, total))
	} else {
		req.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", total))
	}
	return h.sessionCall(req)
}

// Progress asks the session how many bytes it has committed.
func (h *HostClient) Progress(ctx context.Context, session string, total int64) (ports.ChunkResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session, http.NoBody)
	if err != nil {
		return ports.ChunkResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", total))
	return h.sessionCall(req)
}

func (h *HostClient) sessionCall(req *http.Request) (ports.ChunkResult, error) {
	resp, err := h.client.Do(req)
	if err != nil {
		return ports.ChunkResult{}, fmt.Errorf("upload chunk: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var video struct {
			ID string `json:"id"`
		}
		if err := decodeJSON(resp, &video); err != nil {
			return ports.ChunkResult{}, err
		}
		return ports.ChunkResult{Done: true, ExternalID: video.ID}, nil
	case http.StatusPermanentRedirect:
		return ports.ChunkResult{Committed: committedBytes(resp.Header.Get("Range"))}, nil
	default:
		return ports.ChunkResult{}, decodeError(resp)
	}
}

// committedBytes reads the "bytes=0-N" header of an incomplete session.
func committedBytes(rangeHeader string) int64 {
	_, last, ok := strings.Cut(strings.TrimPrefix(rangeHeader, "bytes="), "-")
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		return 0
	}
	return n + 1
}

// SetThumbnail uploads the cover image for a video.
func (h *HostClient) SetThumbnail(ctx context.Context, externalID, imagePath string) error {
	image, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("read thumbnail: %w", err)
	}
	endpoint := h.uploadBase + "/thumbnails/set?" + url.Values{
		"videoId":    {externalID},
		"uploadType": {"media"},
	}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(image))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")
	return h.expect(req, http.StatusOK)
}

// AddToGroup appends the video to a playlist.
func (h *HostClient) AddToGroup(ctx context.Context, groupID, externalID string) error {
	payload := map[string]any{
		"snippet": map[string]any{
			"playlistId": groupID,
			"resourceId": map[string]string{"kind": "youtube#video", "videoId": externalID},
		},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal playlist item: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.apiBase+"/playlistItems?part=snippet", bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return h.expect(req, http.StatusOK)
}

type statusList struct {
	Items []struct {
		ID     string `json:"id"`
		Status struct {
			UploadStatus    string `json:"uploadStatus"`
			RejectionReason string `json:"rejectionReason"`
			FailureReason   string `json:"failureReason"`
			PrivacyStatus   string `json:"privacyStatus"`
		} `json:"status"`
		ContentDetails struct {
			RegionRestriction struct {
				Allowed []string `json:"allowed"`
				Blocked []string `json:"blocked"`
			} `json:"regionRestriction"`
		} `json:"contentDetails"`
	} `json:"items"`
}

// Status reads the moderation and availability fields of a video.
func (h *HostClient) Status(ctx context.Context, externalID string) (domain.PlatformStatus, error) {
	endpoint := h.apiBase + "/videos?" + url.Values{
		"part": {"status,contentDetails"},
		"id":   {externalID},
	}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.PlatformStatus{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return domain.PlatformStatus{}, fmt.Errorf("read status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.PlatformStatus{}, decodeError(resp)
	}

	var list statusList
	if err := decodeJSON(resp, &list); err != nil {
		return domain.PlatformStatus{}, err
	}
	if len(list.Items) == 0 {
		return domain.PlatformStatus{Found: false}, nil
	}
	it := list.Items[0]
	return domain.PlatformStatus{
		Found:           true,
		UploadStatus:    it.Status.UploadStatus,
		RejectionReason: it.Status.RejectionReason,
		FailureReason:   it.Status.FailureReason,
		PrivacyStatus:   it.Status.PrivacyStatus,
		BlockedRegions:  it.ContentDetails.RegionRestriction.Blocked,
		AllowedRegions:  it.ContentDetails.RegionRestriction.Allowed,
	}, nil
}

// Delete removes a video.
func (h *HostClient) Delete(ctx context.Context, externalID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, h.apiBase+"/videos?id="+url.QueryEscape(externalID), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return h.expect(req, http.StatusNoContent)
}

// WatchURL is the public URL of a video.
func (h *HostClient) WatchURL(externalID string) string {
	return watchBaseURL + externalID
}

func (h *HostClient) expect(req *http.Request, status int) error {
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != status && resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return nil
}
