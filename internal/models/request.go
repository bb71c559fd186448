// Package models - API request types and validation.
// This file defines all incoming API request structures with validation methods.
package models

import (
	"errors"
	"fmt"
)

// Suggestion mode constants
const (
	ModeSimple   = "simple"
	ModeDetailed = "detailed"
)

// SuggestRequest is the body of POST /api/suggest_outfit. WeatherData is an
// opaque snapshot produced by the client's weather lookup; the service never
// normalizes it, it only forwards it to the AI collaborator.
type SuggestRequest struct {
	WeatherData map[string]any `json:"weather_data"`
	Mode        string         `json:"mode,omitempty"`       // simple (default) or detailed
	Scene       string         `json:"scene,omitempty"`      // free-form occasion
	Gender      string         `json:"gender,omitempty"`     // style preference
	Preference  string         `json:"preference,omitempty"` // desired garments (detailed mode)
	Wardrobe    string         `json:"wardrobe,omitempty"`   // owned garments (detailed mode)
	DeviceID    string         `json:"device_id,omitempty"`  // opaque client identity token
}

// Validate checks the request and applies defaults. Missing weather data is
// the one hard client error; every option falls back to a sensible default.
func (r *SuggestRequest) Validate() error {
	if len(r.WeatherData) == 0 {
		return errors.New("no weather data provided")
	}
	if r.Mode == "" {
		r.Mode = ModeSimple
	}
	if r.Mode != ModeSimple && r.Mode != ModeDetailed {
		return fmt.Errorf("invalid mode: %s", r.Mode)
	}
	if r.Gender == "" {
		r.Gender = "unspecified"
	}
	return nil
}

// Options returns the suggestion options portion of the request.
func (r *SuggestRequest) Options() SuggestOptions {
	return SuggestOptions{
		Mode:       r.Mode,
		Scene:      r.Scene,
		Gender:     r.Gender,
		Preference: r.Preference,
		Wardrobe:   r.Wardrobe,
	}
}

// SuggestOptions carries the non-weather inputs to the AI collaborator.
type SuggestOptions struct {
	Mode       string
	Scene      string
	Gender     string
	Preference string
	Wardrobe   string
}

// RegisterNameRequest is the body of POST /api/board/register_name.
type RegisterNameRequest struct {
	Username string `json:"username"`
}

// CreatePostRequest is the body of POST /api/board/posts.
type CreatePostRequest struct {
	Content  string `json:"content"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

// ReportPostRequest is the body of POST /api/board/report.
type ReportPostRequest struct {
	PostID int64 `json:"post_id"`
}
