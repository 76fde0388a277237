package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
)

// VoiceService turns a spoken description into prompt text, so users can
// describe the emoji they want without typing.
type VoiceService struct {
	client *speech.Client
}

type TranscribeRequest struct {
	Audio        string `json:"audio" validate:"required"`
	Encoding     string `json:"encoding"`
	SampleRate   int    `json:"sample_rate"`
	LanguageCode string `json:"language_code"`
}

type TranscribeResponse struct {
	Description string  `json:"description"`
	Confidence  float32 `json:"confidence"`
	Duration    float64 `json:"duration_seconds"`
}

func NewVoiceService() *VoiceService {
	ctx := context.Background()
	client, err := speech.NewClient(ctx)
	if err != nil {
		log.Printf("Warning: Failed to initialize speech client: %v", err)
		return &VoiceService{client: nil}
	}
	return &VoiceService{client: client}
}

// TranscribeDescription converts a voice note into description text
// @Summary Transcribe a spoken emoji description
// @Description Convert an uploaded voice note into text usable as a generation description
// @Tags generation
// @Accept json
// @Produce json
// @Param request body TranscribeRequest true "Audio payload"
// @Success 200 {object} TranscribeResponse
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 500 {object} ErrorResponse "Transcription failed"
// @Router /api/transcribe-description [post]
func (s *VoiceService) TranscribeDescription(w http.ResponseWriter, r *http.Request) {
	maxBytes := 10 * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req TranscribeRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if req.Audio == "" {
		SendErrorResponse(w, "Audio is required", http.StatusBadRequest, nil)
		return
	}

	if req.Encoding == "" {
		req.Encoding = "WEBM_OPUS"
	}
	if req.SampleRate == 0 {
		req.SampleRate = 48000
	}
	if req.LanguageCode == "" {
		req.LanguageCode = "en-US"
	}

	startTime := time.Now()
	description, confidence, err := s.Transcribe(r.Context(), req)
	duration := time.Since(startTime).Seconds()

	if err != nil {
		log.Printf("[VOICE] Transcription failed: %v", err)
		SendErrorResponse(w, "Failed to transcribe audio", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[VOICE] Transcription successful, confidence: %.2f", confidence)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(TranscribeResponse{
		Description: description,
		Confidence:  confidence,
		Duration:    duration,
	})
}

func (s *VoiceService) Transcribe(ctx context.Context, req TranscribeRequest) (string, float32, error) {
	if s.client == nil {
		return "", 0, errors.New("speech client is not configured")
	}

	audioBytes, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		return "", 0, fmt.Errorf("failed to decode audio: %w", err)
	}

	if len(audioBytes) == 0 {
		return "", 0, errors.New("audio data is empty")
	}

	encoding, err := parseEncoding(req.Encoding)
	if err != nil {
		return "", 0, err
	}

	speechReq := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   encoding,
			SampleRateHertz:            int32(req.SampleRate),
			LanguageCode:               req.LanguageCode,
			EnableAutomaticPunctuation: true,
			Model:                      "latest_short",
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{
				Content: audioBytes,
			},
		},
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := s.client.Recognize(timeoutCtx, speechReq)
	if err != nil {
		return "", 0, fmt.Errorf("recognition failed: %w", err)
	}

	if len(resp.Results) == 0 {
		return "", 0, errors.New("no transcription results")
	}

	var transcript strings.Builder
	var totalConfidence float32
	var count int

	for _, result := range resp.Results {
		if len(result.Alternatives) > 0 {
			alternative := result.Alternatives[0]
			transcript.WriteString(alternative.Transcript)
			transcript.WriteString(" ")
			totalConfidence += alternative.Confidence
			count++
		}
	}

	if count == 0 {
		return "", 0, errors.New("no alternatives in results")
	}

	return strings.TrimSpace(transcript.String()), totalConfidence / float32(count), nil
}

func parseEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch strings.ToUpper(encoding) {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}

func (s *VoiceService) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
