package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/framefish/subsift/internal/video"
)

// commandEngine drives an external recogniser process per request: the ROI
// crop goes to its stdin as PNG, the process prints a JSON response on
// stdout. One process per request keeps the engine stateless and lets
// deployments swap recognisers without touching this module.
type commandEngine struct {
	cfg Settings
}

// commandResponse is the JSON contract with the external recogniser. ROIs
// are normalized to the crop; Recognize maps them back into frame space.
type commandResponse struct {
	Texts []struct {
		Text       string  `json:"text"`
		Confidence float32 `json:"confidence"`
		ROI        *struct {
			X float64 `json:"x"`
			Y float64 `json:"y"`
			W float64 `json:"w"`
			H float64 `json:"h"`
		} `json:"roi"`
	} `json:"texts"`
}

func (e *commandEngine) Recognize(ctx context.Context, req *Request) (*Response, error) {
	img, err := CropGray(req.Frame, req.ROI)
	if err != nil {
		return nil, &EngineError{Engine: e.cfg.Command, Err: err}
	}
	pngBytes, err := EncodePNG(img)
	if err != nil {
		return nil, &EngineError{Engine: e.cfg.Command, Err: err}
	}

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.cfg.Command, e.cfg.Args...)
	cmd.Stdin = bytes.NewReader(pngBytes)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &EngineError{
			Engine: e.cfg.Command,
			Err:    fmt.Errorf("run: %w (stderr: %s)", err, truncate(stderr.String(), 512)),
		}
	}

	var parsed commandResponse
	if err := json.Unmarshal(stdout.Bytes(), &parsed); err != nil {
		return nil, &EngineError{
			Engine: e.cfg.Command,
			Err:    fmt.Errorf("parse response: %w", err),
		}
	}

	resp := &Response{}
	for _, t := range parsed.Texts {
		out := Text{Text: t.Text, Confidence: t.Confidence, ROI: req.ROI}
		if t.ROI != nil {
			// Map crop-relative coordinates into frame space.
			out.ROI = video.Rect{
				X: req.ROI.X + t.ROI.X*req.ROI.W,
				Y: req.ROI.Y + t.ROI.Y*req.ROI.H,
				W: t.ROI.W * req.ROI.W,
				H: t.ROI.H * req.ROI.H,
			}
		}
		resp.Texts = append(resp.Texts, out)
	}
	return resp, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
