package youtube

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"TrackPublisher/internal/ports"
)

const watchBaseURL = "https://www.youtube.com/watch?v="

type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason  string `json:"reason"`
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"error"`
}

// decodeError turns a non-success response into a *ports.HostError carrying the structured
// reasons, which is what quota detection keys on.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	herr := &ports.HostError{StatusCode: resp.StatusCode, Message: resp.Status}
	var body apiErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Code != 0 {
		herr.Message = body.Error.Message
		for _, e := range body.Error.Errors {
			if e.Reason != "" {
				herr.Reasons = append(herr.Reasons, e.Reason)
			}
		}
		return herr
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		herr.Message = text
	}
	return herr
}

func decodeJSON(resp *http.Response, into any) error {
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("decode %s response: %w", resp.Request.URL.Path, err)
	}
	return nil
}
