package llms

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// JSON models following OpenAI schema

// messageJSON is the wire shape of a Message, parts are kept raw until the
// type discriminator is known.
type messageJSON struct {
	Role  Role              `json:"role"`
	Text  string            `json:"text,omitempty"`
	Parts []json.RawMessage `json:"parts,omitempty"`
}

// ContentPartJSON represents the JSON structure for content parts
type ContentPartJSON struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *ImageURLJSON `json:"image_url,omitempty"`
}

// ImageURLJSON represents the JSON structure for image URL content
type ImageURLJSON struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// MarshalJSON implements json.Marshaler for TextContent
func (tc TextContent) MarshalJSON() ([]byte, error) {
	return json.Marshal(ContentPartJSON{Type: "text", Text: tc.Text})
}

// MarshalJSON implements json.Marshaler for ImageURLContent
func (iuc ImageURLContent) MarshalJSON() ([]byte, error) {
	return json.Marshal(ContentPartJSON{
		Type:     "image_url",
		ImageURL: &ImageURLJSON{URL: iuc.URL, Detail: iuc.Detail},
	})
}

// MarshalJSON implements json.Marshaler for Message
func (m Message) MarshalJSON() ([]byte, error) {
	// Special case: single text part can be simplified
	if len(m.Parts) == 1 {
		if tp, ok := m.Parts[0].(TextContent); ok {
			return json.Marshal(struct {
				Role Role   `json:"role"`
				Text string `json:"text"`
			}{Role: m.Role, Text: tp.Text})
		}
	}

	return json.Marshal(struct {
		Role  Role          `json:"role"`
		Parts []ContentPart `json:"parts"`
	}{Role: m.Role, Parts: m.Parts})
}

// UnmarshalJSON implements json.Unmarshaler for Message
func (m *Message) UnmarshalJSON(data []byte) error {
	var msgJSON messageJSON
	if err := json.Unmarshal(data, &msgJSON); err != nil {
		return errors.Wrap(err, "failed to unmarshal message")
	}

	m.Role = msgJSON.Role
	m.Parts = nil

	if msgJSON.Text != "" {
		m.Parts = []ContentPart{TextContent{Text: msgJSON.Text}}
		return nil
	}

	for _, raw := range msgJSON.Parts {
		var partJSON ContentPartJSON
		if err := json.Unmarshal(raw, &partJSON); err != nil {
			return errors.Wrap(err, "failed to unmarshal content part")
		}
		part, err := unmarshalContentPart(partJSON)
		if err != nil {
			return err
		}
		m.Parts = append(m.Parts, part)
	}
	return nil
}

// unmarshalContentPart converts ContentPartJSON to ContentPart
func unmarshalContentPart(partJSON ContentPartJSON) (ContentPart, error) {
	switch partJSON.Type {
	case "text", "":
		return TextContent{Text: partJSON.Text}, nil
	case "image_url":
		if partJSON.ImageURL == nil {
			return nil, errors.New("image_url field is required for image_url type")
		}
		return ImageURLContent{
			URL:    partJSON.ImageURL.URL,
			Detail: partJSON.ImageURL.Detail,
		}, nil
	}
	return nil, errors.Errorf("unsupported content part type: %s", partJSON.Type)
}
