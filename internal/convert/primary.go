package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// jobResponse is the primary service's job representation.
type jobResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	UploadURL string `json:"upload_url"`
	ResultURL string `json:"result_url"`
	Error     string `json:"error"`
}

// Primary job terminal statuses.
const (
	jobFinished = "finished"
	jobError    = "error"
)

// convertPrimary runs the asynchronous job protocol: create job, upload the
// binary to the returned signed location, poll at a fixed interval up to the
// attempt ceiling, then download the result. Any non-finished terminal
// status, or exhausting the ceiling, is a hard failure with no further
// fallback.
func (p *Pipeline) convertPrimary(ctx context.Context, data []byte, filename string) ([]byte, error) {
	if p.cfg.PrimaryURL == "" {
		return nil, fmt.Errorf("no conversion service configured")
	}

	job, err := p.createJob(ctx)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("conversion job created", zap.String("job_id", job.ID))

	if err := p.uploadToJob(ctx, job.UploadURL, data, filename); err != nil {
		return nil, err
	}

	interval := time.Duration(p.cfg.PollIntervalMS) * time.Millisecond
	for attempt := 1; attempt <= p.cfg.PollMaxAttempts; attempt++ {
		status, err := p.pollJob(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		switch status.Status {
		case jobFinished:
			result, err := p.downloadResult(ctx, status.ResultURL)
			if err != nil {
				return nil, err
			}
			if err := validatePDF(result); err != nil {
				return nil, fmt.Errorf("conversion job %s returned malformed result: %w", job.ID, err)
			}
			return result, nil
		case jobError:
			msg := status.Error
			if msg == "" {
				msg = "unknown error"
			}
			return nil, fmt.Errorf("conversion job %s failed: %s", job.ID, msg)
		}
		if err := p.sleep(ctx, interval); err != nil {
			return nil, fmt.Errorf("conversion timed out waiting for job %s: %w", job.ID, err)
		}
	}
	return nil, fmt.Errorf("conversion job %s not finished after %d attempts", job.ID, p.cfg.PollMaxAttempts)
}

func (p *Pipeline) createJob(ctx context.Context) (*jobResponse, error) {
	body, _ := json.Marshal(map[string]string{
		"input_format":  "docx",
		"output_format": "pdf",
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.PrimaryURL+"/jobs", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.PrimaryAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.PrimaryAPIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create conversion job: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("create conversion job: status %d", resp.StatusCode)
	}

	var job jobResponse
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("create conversion job: decode response: %w", err)
	}
	if job.ID == "" || job.UploadURL == "" {
		return nil, fmt.Errorf("create conversion job: incomplete response")
	}
	return &job, nil
}

func (p *Pipeline) uploadToJob(ctx context.Context, uploadURL string, data []byte, filename string) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := fw.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload to conversion job: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("upload to conversion job: status %d", resp.StatusCode)
	}
	return nil
}

func (p *Pipeline) pollJob(ctx context.Context, jobID string) (*jobResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.PrimaryURL+"/jobs/"+jobID, nil)
	if err != nil {
		return nil, err
	}
	if p.cfg.PrimaryAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.PrimaryAPIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll conversion job %s: %w", jobID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("poll conversion job %s: status %d", jobID, resp.StatusCode)
	}

	var job jobResponse
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("poll conversion job %s: decode response: %w", jobID, err)
	}
	return &job, nil
}

func (p *Pipeline) downloadResult(ctx context.Context, resultURL string) ([]byte, error) {
	if resultURL == "" {
		return nil, fmt.Errorf("conversion job finished without a result URL")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download conversion result: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("download conversion result: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
