package gcp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"github.com/Lllllllleong/photoop/internal/models"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/structpb"
)

// --- Image Transformation Prompt ---
// [1] refers to the subject reference image sent with the request.
const TransformPrompt = `Create an image of the person [1] preserving their identity, pose and facial features, restyled as follows: %s.
Transformation strength %.2f (0 keeps the photo, 1 fully restyles it). Prompt adherence %.1f. Refinement passes %d.`

const subjectReferenceID = 1

// ErrNoImage is returned when the model answers without image data.
var ErrNoImage = errors.New("vertex: response contained no image")

// VertexClient calls an Imagen capability model through the Vertex AI prediction API.
type VertexClient struct {
	predictor *aiplatform.PredictionClient
	endpoint  string
	modelName string
	region    string
}

// NewVertexClient creates a prediction client bound to the regional endpoint of modelName.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if modelName == "" {
		return nil, fmt.Errorf("NewVertexClient: model name cannot be empty")
	}

	apiEndpoint := fmt.Sprintf("%s-aiplatform.googleapis.com:443", region)
	predictor, err := aiplatform.NewPredictionClient(ctx, option.WithEndpoint(apiEndpoint))
	if err != nil {
		return nil, fmt.Errorf("aiplatform.NewPredictionClient: %w", err)
	}

	return &VertexClient{
		predictor: predictor,
		endpoint:  ModelEndpoint(projectID, region, modelName),
		modelName: modelName,
		region:    region,
	}, nil
}

// ModelEndpoint returns the resource name of a Google publisher model.
func ModelEndpoint(projectID, region, modelName string) string {
	return fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s", projectID, region, modelName)
}

// Transform sends the photo as a subject reference and returns the first generated image.
func (c *VertexClient) Transform(ctx context.Context, req models.TransformRequest) (*models.TransformResult, error) {
	predictReq, err := buildPredictRequest(c.endpoint, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.predictor.Predict(ctx, predictReq)
	if err != nil {
		return nil, fmt.Errorf("failed to generate image from vertex: %w", err)
	}
	return extractPrediction(resp)
}

// Info describes the model for health reporting.
func (c *VertexClient) Info() models.ModelInfo {
	return models.ModelInfo{
		Name:   c.modelName,
		Device: "vertex-ai/" + c.region,
		DType:  "managed",
	}
}

func (c *VertexClient) Close() error {
	if c.predictor != nil {
		return c.predictor.Close()
	}
	return nil
}

// buildPredictRequest encodes one subject-customization instance asking for a single PNG.
func buildPredictRequest(endpoint string, req models.TransformRequest) (*aiplatformpb.PredictRequest, error) {
	if len(req.Image) == 0 {
		return nil, fmt.Errorf("transform request has no image")
	}

	instance, err := structpb.NewValue(map[string]any{
		"prompt": fmt.Sprintf(TransformPrompt, req.Prompt, req.Strength, req.GuidanceScale, req.Steps),
		"referenceImages": []any{
			map[string]any{
				"referenceType": "REFERENCE_TYPE_SUBJECT",
				"referenceId":   subjectReferenceID,
				"referenceImage": map[string]any{
					"bytesBase64Encoded": base64.StdEncoding.EncodeToString(req.Image),
				},
				"subjectImageConfig": map[string]any{
					"subjectType":        "SUBJECT_TYPE_PERSON",
					"subjectDescription": "a person",
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode prediction instance: %w", err)
	}

	params, err := structpb.NewValue(map[string]any{
		"sampleCount":      1,
		"personGeneration": "allow_adult",
		"safetySetting":    "block_medium_and_above",
		"outputOptions": map[string]any{
			"mimeType": "image/png",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode prediction parameters: %w", err)
	}

	return &aiplatformpb.PredictRequest{
		Endpoint:   endpoint,
		Instances:  []*structpb.Value{instance},
		Parameters: params,
	}, nil
}

// extractPrediction decodes the first prediction carrying image bytes.
func extractPrediction(resp *aiplatformpb.PredictResponse) (*models.TransformResult, error) {
	if resp == nil {
		return nil, ErrNoImage
	}

	var reasons []string
	for _, p := range resp.GetPredictions() {
		fields := p.GetStructValue().GetFields()
		encoded := fields["bytesBase64Encoded"].GetStringValue()
		if encoded == "" {
			if reason := fields["raiFilteredReason"].GetStringValue(); reason != "" {
				reasons = append(reasons, reason)
			}
			continue
		}
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode predicted image: %w", err)
		}
		mimeType := fields["mimeType"].GetStringValue()
		if mimeType == "" {
			mimeType = "image/png"
		}
		return &models.TransformResult{Data: data, MIMEType: mimeType}, nil
	}

	if len(reasons) > 0 {
		return nil, fmt.Errorf("%w: filtered: %s", ErrNoImage, strings.Join(reasons, "; "))
	}
	return nil, ErrNoImage
}
