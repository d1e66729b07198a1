package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

// convertSecondary posts the binary to the self-hosted synchronous endpoint.
// The response is either the PDF itself or JSON with a follow-up download
// URL. Every failure mode here (non-2xx, malformed response, unreadable PDF)
// is reported to the caller, which falls back to the primary service.
func (p *Pipeline) convertSecondary(ctx context.Context, data []byte, filename string) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.SecondaryURL, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("secondary conversion: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("secondary conversion: status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, PDFContentType) {
		result, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("secondary conversion: read response: %w", err)
		}
		if err := validatePDF(result); err != nil {
			return nil, fmt.Errorf("secondary conversion: malformed response: %w", err)
		}
		return result, nil
	}

	// JSON body with a follow-up download URL.
	var body struct {
		DownloadURL string `json:"download_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("secondary conversion: decode response: %w", err)
	}
	if body.DownloadURL == "" {
		return nil, fmt.Errorf("secondary conversion: response carries no download URL")
	}
	result, err := p.downloadResult(ctx, body.DownloadURL)
	if err != nil {
		return nil, fmt.Errorf("secondary conversion: %w", err)
	}
	if err := validatePDF(result); err != nil {
		return nil, fmt.Errorf("secondary conversion: malformed response: %w", err)
	}
	return result, nil
}
