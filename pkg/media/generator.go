// Package media turns a prompt into a URL for generated media. Raster images
// are requested from an image model through OpenRouter; other formats and
// unconfigured deployments get placeholder URLs.
package media

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/devagent-ai/devagent/pkg/models"
	"github.com/devagent-ai/devagent/pkg/provider"
)

// Format is a requested output format.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPG  Format = "jpg"
	FormatGIF  Format = "gif"
	FormatWEBP Format = "webp"
	FormatMP4  Format = "mp4"
	FormatGLB  Format = "glb"
	FormatGLTF Format = "gltf"
)

// Formats lists every accepted format.
var Formats = []Format{FormatPNG, FormatJPG, FormatGIF, FormatWEBP, FormatMP4, FormatGLB, FormatGLTF}

// Kind is the media category a format belongs to.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	Kind3D    Kind = "3d"
)

// Defaults applied to empty request fields.
const (
	DefaultFormat = FormatPNG
	DefaultSize   = "1024x1024"
	// ImageModel is the OpenRouter model used for raster images.
	ImageModel = "black-forest-labs/flux-pro"
)

const (
	placeholderBase = "https://via.placeholder.com/"
	shapesBase      = "https://api.dicebear.com/7.x/shapes/svg?seed="
	avatarBase      = "https://api.dicebear.com/7.x/avataaars/svg?seed="
)

// Valid reports whether f is an accepted format.
func (f Format) Valid() bool {
	switch f {
	case FormatPNG, FormatJPG, FormatGIF, FormatWEBP, FormatMP4, FormatGLB, FormatGLTF:
		return true
	}
	return false
}

// Kind returns the media category for f.
func (f Format) Kind() Kind {
	switch f {
	case FormatMP4:
		return KindVideo
	case FormatGLB, FormatGLTF:
		return Kind3D
	}
	return KindImage
}

// Request describes the media to generate.
type Request struct {
	Prompt string `json:"prompt" validate:"required"`
	Format Format `json:"format,omitempty"`
	Size   string `json:"size,omitempty"`
}

// Result is what the generate endpoint returns.
type Result struct {
	URL    string `json:"url"`
	Format Format `json:"format"`
	Prompt string `json:"prompt"`
	Type   Kind   `json:"type"`
	Note   string `json:"note,omitempty"`
}

// Generator produces media URLs. Image generation goes through the given
// chat adapter, normally OpenRouter.
type Generator struct {
	chat provider.Adapter
}

// NewGenerator returns a Generator backed by chat. A nil or unavailable
// adapter makes every result a placeholder.
func NewGenerator(chat provider.Adapter) *Generator {
	return &Generator{chat: chat}
}

// Normalize fills defaults and validates req.
func Normalize(req Request) (Request, error) {
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return req, fmt.Errorf("prompt is required: %w", models.ErrValidation)
	}
	if req.Format == "" {
		req.Format = DefaultFormat
	}
	req.Format = Format(strings.ToLower(string(req.Format)))
	if !req.Format.Valid() {
		return req, fmt.Errorf("unsupported format %q: %w", req.Format, models.ErrValidation)
	}
	if req.Size == "" {
		req.Size = DefaultSize
	}
	return req, nil
}

// Generate returns a URL for req. Vendor failures degrade to a placeholder
// with a note; only validation errors are returned.
func (g *Generator) Generate(ctx context.Context, req Request) (Result, error) {
	req, err := Normalize(req)
	if err != nil {
		return Result{}, err
	}
	res := Result{Format: req.Format, Prompt: req.Prompt, Type: req.Format.Kind()}
	seed := url.QueryEscape(req.Prompt)

	if g.chat == nil || !g.chat.Available() {
		res.URL = placeholderBase + req.Size + "?text=" + seed
		res.Note = "Image generation API key not configured. Using placeholder."
		return res, nil
	}

	switch req.Format {
	case FormatGIF:
		res.URL = shapesBase + seed
		res.Note = "GIF generation - using placeholder service"
		return res, nil
	case FormatMP4:
		res.URL = placeholderBase + req.Size + "/000000/FFFFFF?text=" + seed
		res.Note = "Video generation - placeholder (integrate with video generation API)"
		return res, nil
	case FormatGLB, FormatGLTF:
		res.URL = placeholderBase + req.Size + "/000000/FFFFFF?text=" + seed
		res.Note = "3D model generation - placeholder (integrate with 3D generation API)"
		return res, nil
	}

	resp, err := g.chat.Chat(ctx, models.Request{
		Model: ImageModel,
		Messages: []models.Message{{
			Role:    models.RoleUser,
			Content: fmt.Sprintf("Generate an image: %s. Format: %s, Size: %s", req.Prompt, req.Format, req.Size),
		}},
	})
	if err != nil {
		log.Printf("media: image generation failed: %v", err)
		res.URL = avatarBase + seed
		res.Note = "Using fallback image generation service"
		return res, nil
	}
	res.URL = strings.TrimSpace(resp.Content)
	if res.URL == "" {
		res.URL = avatarBase + seed
	}
	return res, nil
}
