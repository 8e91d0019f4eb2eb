package inference

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/sonicsight/server/internal/spool"
	"github.com/spf13/afero"
)

// maxErrorBody caps how much of a failed response is quoted in errors.
const maxErrorBody = 512

// GradioOptions configures a GradioClient.
type GradioOptions struct {
	BaseURL    string // e.g. https://owner-space.hf.space
	APIName    string // e.g. /predict_audio
	Token      string // Hugging Face access token, optional
	Shape      Shape
	Fs         afero.Fs     // filesystem the audio path and downloads live on
	Downloads  *spool.Spool // where by-reference outputs are fetched to
	HTTPClient *http.Client
	Logger     *log.Logger
}

// GradioClient calls a Gradio Space over its REST API: upload the input
// file, submit a call, then read the result event stream.
type GradioClient struct {
	baseURL   string
	apiName   string
	token     string
	shape     Shape
	fs        afero.Fs
	downloads *spool.Spool
	http      *http.Client
	logger    *log.Logger
}

// NewGradioClient validates opts and builds a client.
func NewGradioClient(opts GradioOptions) (*GradioClient, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("gradio: base URL is required")
	}
	if opts.APIName == "" {
		return nil, errors.New("gradio: API name is required")
	}
	if opts.Shape == nil {
		opts.Shape = PathTuple
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Downloads == nil && opts.Shape == PathTuple {
		return nil, errors.New("gradio: a download spool is required for the path response shape")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}

	return &GradioClient{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		apiName:   strings.Trim(opts.APIName, "/"),
		token:     opts.Token,
		shape:     opts.Shape,
		fs:        opts.Fs,
		downloads: opts.Downloads,
		http:      opts.HTTPClient,
		logger:    opts.Logger,
	}, nil
}

// Classify implements Classifier.
func (c *GradioClient) Classify(ctx context.Context, audioPath string) (*Output, error) {
	serverPath, err := c.upload(ctx, audioPath)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("uploaded audio to space", "local", audioPath, "remote", serverPath)

	eventID, err := c.submit(ctx, fileData{
		Path:     serverPath,
		OrigName: filepath.Base(audioPath),
		Meta:     map[string]any{"_type": "gradio.FileData"},
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("submitted prediction", "api", c.apiName, "event", eventID)

	data, err := c.await(ctx, eventID)
	if err != nil {
		return nil, err
	}

	return c.shape.decode(ctx, c, data)
}

func (c *GradioClient) upload(ctx context.Context, audioPath string) (string, error) {
	f, err := c.fs.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("opening audio for upload: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("files", filepath.Base(audioPath))
	if err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/gradio_api/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var paths []string
	if err := c.doJSON(req, &paths); err != nil {
		return "", fmt.Errorf("uploading audio: %w", err)
	}
	if len(paths) == 0 || paths[0] == "" {
		return "", errors.New("uploading audio: space returned no file path")
	}
	return paths[0], nil
}

func (c *GradioClient) submit(ctx context.Context, input fileData) (string, error) {
	payload, err := json.Marshal(map[string]any{"data": []any{input}})
	if err != nil {
		return "", fmt.Errorf("encoding call payload: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/gradio_api/call/"+c.apiName, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp struct {
		EventID string `json:"event_id"`
	}
	if err := c.doJSON(req, &resp); err != nil {
		return "", fmt.Errorf("submitting prediction: %w", err)
	}
	if resp.EventID == "" {
		return "", errors.New("submitting prediction: space returned no event id")
	}
	return resp.EventID, nil
}

// await reads the server-sent event stream for eventID until the call
// completes or fails.
func (c *GradioClient) await(ctx context.Context, eventID string) ([]json.RawMessage, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/gradio_api/call/"+c.apiName+"/"+eventID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reading prediction result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reading prediction result: %w", statusError(resp))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			switch event {
			case "complete":
				var data []json.RawMessage
				if err := json.Unmarshal([]byte(payload), &data); err != nil {
					return nil, fmt.Errorf("%w: result is not an array: %v", ErrMalformedOutput, err)
				}
				return data, nil
			case "error":
				return nil, fmt.Errorf("space reported an error: %s", errorMessage(payload))
			}
		case line == "":
			event = ""
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading prediction result: %w", err)
	}

	return nil, errors.New("reading prediction result: stream ended without a result")
}

// download fetches a by-reference output into the download spool and
// returns its local path.
func (c *GradioClient) download(ctx context.Context, fd fileData) (string, error) {
	target := fd.URL
	if target == "" {
		target = c.baseURL + "/gradio_api/file=" + fd.Path
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("building download request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading spectrogram: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("%w: spectrogram file not found at %s", ErrMalformedOutput, fd.Path)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("downloading spectrogram: %w", statusError(resp))
	}

	name := fd.OrigName
	if name == "" {
		name = path.Base(fd.Path)
	}
	f, err := c.downloads.Write(name, resp.Body)
	if err != nil {
		return "", fmt.Errorf("saving spectrogram: %w", err)
	}
	return f.Path, nil
}

func (c *GradioClient) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.authorize(req)
	return req, nil
}

func (c *GradioClient) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *GradioClient) doJSON(req *http.Request, v any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(snippet))
	if msg == "" {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return fmt.Errorf("unexpected status %s: %s", resp.Status, msg)
}

// errorMessage extracts a readable message from an error event payload,
// which is null, a JSON string, or an object with a message field.
func errorMessage(payload string) string {
	if payload == "" || payload == "null" {
		return "no details"
	}
	var s string
	if err := json.Unmarshal([]byte(payload), &s); err == nil && s != "" {
		return s
	}
	var obj struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal([]byte(payload), &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		if obj.Error != "" {
			return obj.Error
		}
	}
	return payload
}
