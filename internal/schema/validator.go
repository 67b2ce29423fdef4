// internal/schema/validator.go
// Package schema provides JSON schema validation for catalog API request bodies.
// Bodies are validated before they are decoded into engine calls.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Request schema names.
const (
	NavCreate      = "nav.create"
	NavEnter       = "nav.enter"
	NavSelect      = "nav.select"
	PlaybackCreate = "playback.create"
	PlaybackAction = "playback.action"
	PlaybackEvent  = "playback.event"
	PlaybackKey    = "playback.key"
	PlaybackChat   = "playback.chat"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("request failed schema validation")

// schemaSources holds the JSON schema of every request body.
var schemaSources = map[string]string{
	NavCreate: `{"type":"object","required":["batchId"],"additionalProperties":false,"properties":{
		"batchId":{"type":"string","minLength":1},
		"folderId":{"type":"string","minLength":1}}}`,
	NavEnter: `{"type":"object","required":["folderId"],"additionalProperties":false,"properties":{
		"folderId":{"type":"string","minLength":1}}}`,
	NavSelect: `{"type":"object","required":["contentId"],"additionalProperties":false,"properties":{
		"contentId":{"type":"string","minLength":1},
		"elementId":{"type":"string","minLength":1}}}`,
	PlaybackCreate: `{"type":"object","required":["url"],"additionalProperties":false,"properties":{
		"url":{"type":"string","minLength":1},
		"title":{"type":"string","maxLength":512},
		"type":{"enum":["lecture","live"]},
		"chat":{"type":"boolean"},
		"elementId":{"type":"string","minLength":1}}}`,
	PlaybackAction: `{"type":"object","required":["action"],"additionalProperties":false,"properties":{
		"action":{"enum":["load","retry","togglePlay","seek","setVolume","changeVolume","toggleMute",
			"skipBackward","skipForward","toggleFullscreen","setQuality","pointerMove","pointerLeave","setMenus"]},
		"url":{"type":"string","minLength":1},
		"value":{"type":"number"},
		"quality":{"type":"string"},
		"volumeMenuOpen":{"type":"boolean"},
		"qualityMenuOpen":{"type":"boolean"}}}`,
	PlaybackEvent: `{"type":"object","required":["type"],"additionalProperties":false,"properties":{
		"type":{"enum":["loadstart","loadedmetadata","timeupdate","canplay","waiting","playing","pause",
			"ended","error","playrejected","fullscreenchange"]},
		"position":{"type":"number","minimum":0},
		"duration":{"type":"number","minimum":0},
		"message":{"type":"string","maxLength":512},
		"fullscreen":{"type":"boolean"}}}`,
	PlaybackKey: `{"type":"object","required":["code"],"additionalProperties":false,"properties":{
		"code":{"type":"string","minLength":1,"maxLength":32}}}`,
	PlaybackChat: `{"type":"object","required":["text"],"additionalProperties":false,"properties":{
		"text":{"type":"string","maxLength":2048}}}`,
}

// Validator validates request bodies against compiled JSON schemas.
type Validator struct {
	schemas map[string]*gojsonschema.Schema
}

// NewValidator compiles every request schema.
func NewValidator() (*Validator, error) {
	v := &Validator{schemas: make(map[string]*gojsonschema.Schema, len(schemaSources))}
	for name, src := range schemaSources {
		if err := v.loadSchema(name, src); err != nil {
			return nil, fmt.Errorf("failed to load schemas: %w", err)
		}
	}
	return v, nil
}

// loadSchema parses and compiles a single schema.
func (v *Validator) loadSchema(name, schemaJSON string) error {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return fmt.Errorf("invalid schema for %s: %w", name, err)
	}
	v.schemas[name] = schema
	return nil
}

// Validate checks body against the named schema. Failures wrap ErrInvalid and
// list every violated constraint.
func (v *Validator) Validate(name string, body []byte) error {
	schema, exists := v.schemas[name]
	if !exists {
		return fmt.Errorf("schema not found: %s", name)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		// body is not JSON at all
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return nil
}
