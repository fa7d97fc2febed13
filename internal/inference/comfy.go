package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// ComfyConfig holds the remote inference server settings.
type ComfyConfig struct {
	BaseURL      string
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// ComfyClient runs face transfer on a remote ComfyUI-compatible server:
// upload inputs, queue the workflow, poll history, download the result.
type ComfyClient struct {
	config     *ComfyConfig
	httpClient *http.Client
	template   []byte
	detector   FaceDetector
	logger     *slog.Logger
}

// NewComfyClient creates a remote inference client. template is the
// workflow graph JSON; detector centers the synthesized mask.
func NewComfyClient(config *ComfyConfig, template []byte, detector FaceDetector, logger *slog.Logger) *ComfyClient {
	if config.PollInterval <= 0 {
		config.PollInterval = 3 * time.Second
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = 300 * time.Second
	}
	return &ComfyClient{
		config:     config,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		template:   template,
		detector:   detector,
		logger:     logger,
	}
}

// TransferFace runs the full remote protocol. Every protocol failure comes
// back as a remote error so the caller can fall back to the local path.
func (c *ComfyClient) TransferFace(ctx context.Context, req *TransferRequest) (image.Image, error) {
	mask := req.Mask
	if mask == nil {
		mask = BuildFaceMask(req.Illustration, c.detector)
	}

	childName, err := c.uploadImage(ctx, req.ChildPhoto, fmt.Sprintf("child_%s.png", uuid.NewString()))
	if err != nil {
		return nil, newRemoteError(err)
	}
	illustrationName, err := c.uploadImage(ctx, req.Illustration, fmt.Sprintf("illustration_%s.png", uuid.NewString()))
	if err != nil {
		return nil, newRemoteError(err)
	}
	maskName, err := c.uploadImage(ctx, mask, fmt.Sprintf("mask_%s.png", uuid.NewString()))
	if err != nil {
		return nil, newRemoteError(err)
	}

	workflow, err := BuildWorkflow(c.template, WorkflowParams{
		ChildPhotoFilename:   childName,
		IllustrationFilename: illustrationName,
		MaskFilename:         maskName,
		Prompt:               req.Prompt,
		NegativePrompt:       req.NegativePrompt,
		Seed:                 req.Seed,
	})
	if err != nil {
		return nil, err
	}

	promptID, err := c.queuePrompt(ctx, workflow)
	if err != nil {
		return nil, newRemoteError(err)
	}

	c.logger.Info("Queued face transfer prompt",
		slog.String("prompt_id", promptID),
	)

	result, err := c.awaitResult(ctx, promptID)
	if err != nil {
		return nil, newRemoteError(err)
	}
	return result, nil
}

// uploadImage posts a PNG to /upload/image and returns the server-side name.
func (c *ComfyClient) uploadImage(ctx context.Context, img image.Image, filename string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return "", err
	}
	if err := png.Encode(part, img); err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", filename, err)
	}
	if err := writer.WriteField("overwrite", "true"); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/upload/image", &body)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload returned %d", resp.StatusCode)
	}

	var result struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	if result.Name == "" {
		result.Name = filename
	}
	return result.Name, nil
}

// queuePrompt posts the workflow to /prompt and returns the prompt id.
func (c *ComfyClient) queuePrompt(ctx context.Context, workflow Workflow) (string, error) {
	payload, err := json.Marshal(map[string]any{"prompt": workflow})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/prompt", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("queue prompt failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("queue prompt returned %d", resp.StatusCode)
	}

	var result struct {
		PromptID string `json:"prompt_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode queue response: %w", err)
	}
	if result.PromptID == "" {
		return "", fmt.Errorf("queue response carried no prompt_id")
	}
	return result.PromptID, nil
}

type historyEntry struct {
	Status struct {
		Completed bool   `json:"completed"`
		Error     string `json:"error"`
	} `json:"status"`
	Outputs map[string]struct {
		Images []struct {
			Filename  string `json:"filename"`
			Subfolder string `json:"subfolder"`
		} `json:"images"`
	} `json:"outputs"`
}

// awaitResult polls /history/{id} until the workflow completes, errors, or
// the poll deadline passes, then downloads the first output image.
func (c *ComfyClient) awaitResult(ctx context.Context, promptID string) (image.Image, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.PollTimeout)
	defer cancel()

	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		entry, err := c.fetchHistory(ctx, promptID)
		if err != nil {
			c.logger.Warn("History poll failed",
				slog.String("prompt_id", promptID),
				slog.Any("error", err),
			)
		} else if entry != nil {
			if entry.Status.Error != "" {
				return nil, fmt.Errorf("workflow failed: %s", entry.Status.Error)
			}
			if entry.Status.Completed {
				for _, out := range entry.Outputs {
					if len(out.Images) > 0 {
						return c.fetchView(ctx, out.Images[0].Filename, out.Images[0].Subfolder)
					}
				}
				return nil, fmt.Errorf("workflow completed without output images")
			}
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("generation timed out after %s", c.config.PollTimeout)
		case <-ticker.C:
		}
	}
}

func (c *ComfyClient) fetchHistory(ctx context.Context, promptID string) (*historyEntry, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/history/"+promptID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history returned %d", resp.StatusCode)
	}

	var history map[string]*historyEntry
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return nil, err
	}
	return history[promptID], nil
}

// fetchView downloads a generated image from /view.
func (c *ComfyClient) fetchView(ctx context.Context, filename, subfolder string) (image.Image, error) {
	params := url.Values{}
	params.Set("filename", filename)
	params.Set("subfolder", subfolder)
	params.Set("type", "output")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/view?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("view download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("view returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode result image: %w", err)
	}
	return img, nil
}
