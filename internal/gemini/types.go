package gemini

import (
	"encoding/base64"

	"google.golang.org/genai"
)

// PredictRequest is the body of an imagen :predict call.
type PredictRequest struct {
	Instances  []PredictInstance `json:"instances"`
	Parameters PredictParameters `json:"parameters"`
}

type PredictInstance struct {
	Prompt string `json:"prompt"`
}

type PredictParameters struct {
	SampleCount int    `json:"sampleCount"`
	AspectRatio string `json:"aspectRatio,omitempty"`
}

// PredictResponse carries the prediction list of a :predict call. The service
// has been observed to answer in two shapes: several predictions each holding
// one embedded image, or a single prediction holding a list of images.
type PredictResponse struct {
	Predictions []Prediction `json:"predictions"`
}

// Prediction is the union of both observed prediction shapes.
type Prediction struct {
	BytesBase64Encoded string            `json:"bytesBase64Encoded,omitempty"`
	MimeType           string            `json:"mimeType,omitempty"`
	Images             []PredictionImage `json:"images,omitempty"`
}

type PredictionImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType,omitempty"`
}

// ImagePayload is one decoded embedded image.
type ImagePayload struct {
	Data     []byte
	MimeType string
}

const defaultImageMime = "image/png"

type predictionShape int

const (
	shapeEmpty predictionShape = iota
	shapeSingleImage
	shapeImageList
)

func (p *Prediction) shape() predictionShape {
	switch {
	case len(p.Images) > 0:
		return shapeImageList
	case p.BytesBase64Encoded != "":
		return shapeSingleImage
	default:
		return shapeEmpty
	}
}

// FlattenPredictions normalizes both prediction shapes into one ordered flat
// list of decoded payloads. Entries without a decodable embedded image are
// dropped.
func FlattenPredictions(predictions []Prediction) []ImagePayload {
	var payloads []ImagePayload
	for i := range predictions {
		prediction := &predictions[i]
		switch prediction.shape() {
		case shapeImageList:
			for _, image := range prediction.Images {
				if payload, ok := decodePayload(image.BytesBase64Encoded, image.MimeType); ok {
					payloads = append(payloads, payload)
				}
			}
		case shapeSingleImage:
			if payload, ok := decodePayload(prediction.BytesBase64Encoded, prediction.MimeType); ok {
				payloads = append(payloads, payload)
			}
		case shapeEmpty:
			// dropped
		}
	}
	return payloads
}

func decodePayload(encoded, mimeType string) (ImagePayload, bool) {
	if encoded == "" {
		return ImagePayload{}, false
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return ImagePayload{}, false
	}
	if mimeType == "" {
		mimeType = defaultImageMime
	}
	return ImagePayload{Data: data, MimeType: mimeType}, true
}

// TextPart builds a text-only content part.
func TextPart(text string) *genai.Part {
	return genai.NewPartFromText(text)
}

// ImagePart builds an inline-image content part from raw bytes.
func ImagePart(mimeType string, data []byte) *genai.Part {
	return &genai.Part{
		InlineData: &genai.Blob{
			MIMEType: mimeType,
			Data:     data,
		},
	}
}

// FirstText returns the first non-empty text part of the first candidate.
func FirstText(response *genai.GenerateContentResponse) (string, bool) {
	if response == nil {
		return "", false
	}
	for _, candidate := range response.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" {
				return part.Text, true
			}
		}
	}
	return "", false
}

// FirstInlineImage returns the first content part carrying an embedded image.
func FirstInlineImage(response *genai.GenerateContentResponse) (ImagePayload, bool) {
	if response == nil {
		return ImagePayload{}, false
	}
	for _, candidate := range response.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			mimeType := part.InlineData.MIMEType
			if mimeType == "" {
				mimeType = defaultImageMime
			}
			return ImagePayload{Data: part.InlineData.Data, MimeType: mimeType}, true
		}
	}
	return ImagePayload{}, false
}
