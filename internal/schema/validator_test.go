package schema

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator() error = %v", err)
	}

	tests := []struct {
		name   string
		schema string
		body   string
		valid  bool
	}{
		{"nav create", NavCreate, `{"batchId":"b1"}`, true},
		{"nav create missing batch", NavCreate, `{"folderId":"f1"}`, false},
		{"nav create extra field", NavCreate, `{"batchId":"b1","title":"x"}`, false},
		{"enter", NavEnter, `{"folderId":"f1"}`, true},
		{"select empty id", NavSelect, `{"contentId":""}`, false},
		{"playback create", PlaybackCreate, `{"url":"https://cdn/a.m3u8","type":"live","chat":true}`, true},
		{"playback bad type", PlaybackCreate, `{"url":"https://cdn/a.m3u8","type":"webinar"}`, false},
		{"seek action", PlaybackAction, `{"action":"seek","value":12.5}`, true},
		{"unknown action", PlaybackAction, `{"action":"rewind"}`, false},
		{"event", PlaybackEvent, `{"type":"loadedmetadata","duration":120}`, true},
		{"negative position", PlaybackEvent, `{"type":"timeupdate","position":-1}`, false},
		{"key", PlaybackKey, `{"code":"Space"}`, true},
		{"chat blank allowed", PlaybackChat, `{"text":"  "}`, true},
		{"not json", PlaybackChat, `{"text":`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.schema, []byte(tt.body))
			if tt.valid && err != nil {
				t.Errorf("Validate() error = %v", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestValidateUnknownSchema(t *testing.T) {
	v, _ := NewValidator()
	if err := v.Validate("nope", []byte(`{}`)); err == nil || errors.Is(err, ErrInvalid) {
		t.Fatalf("Validate(unknown) error = %v", err)
	}
}
