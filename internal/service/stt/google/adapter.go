// Package google provides a Google Cloud Speech-to-Text adapter.
package google

import (
	"context"
	"os"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"

	"transcript-chat-service/internal/models"
	"transcript-chat-service/internal/service/stt"
)

// Config holds Google STT configuration.
type Config struct {
	LanguageCode  string
	SampleRateHz  int
	AudioEncoding string
	Model         string
}

// DefaultConfig returns default Google STT configuration.
func DefaultConfig() Config {
	return Config{
		LanguageCode:  "en-US",
		SampleRateHz:  16000,
		AudioEncoding: "LINEAR16",
	}
}

// Adapter implements stt.Transcriber using Google Cloud Speech-to-Text
// long-running recognition.
type Adapter struct {
	client *speech.Client
	cfg    Config
}

// New creates a new Google STT adapter.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Adapter{client: c, cfg: cfg}, nil
}

// Transcribe recognizes a local file, or a gs:// object when path is a bucket URI.
func (a *Adapter) Transcribe(ctx context.Context, path string) ([]models.TranscriptSegment, error) {
	audio := &speechpb.RecognitionAudio{}
	if strings.HasPrefix(path, "gs://") {
		audio.AudioSource = &speechpb.RecognitionAudio_Uri{Uri: path}
	} else {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, a.fail(path, err)
		}
		audio.AudioSource = &speechpb.RecognitionAudio_Content{Content: content}
	}

	op, err := a.client.LongRunningRecognize(ctx, &speechpb.LongRunningRecognizeRequest{
		Config: a.recognitionConfig(),
		Audio:  audio,
	})
	if err != nil {
		return nil, a.fail(path, err)
	}
	resp, err := op.Wait(ctx)
	if err != nil {
		return nil, a.fail(path, err)
	}
	return segmentsFromResults(resp.GetResults()), nil
}

// Close releases the underlying gRPC connection.
func (a *Adapter) Close() error {
	return a.client.Close()
}

func (a *Adapter) recognitionConfig() *speechpb.RecognitionConfig {
	return &speechpb.RecognitionConfig{
		Encoding:                   parseAudioEncoding(a.cfg.AudioEncoding),
		SampleRateHertz:            int32(a.cfg.SampleRateHz),
		LanguageCode:               a.cfg.LanguageCode,
		Model:                      a.cfg.Model,
		EnableWordTimeOffsets:      true,
		EnableAutomaticPunctuation: true,
	}
}

func (a *Adapter) fail(path string, err error) error {
	return &stt.TranscriptionError{Provider: "google", Path: path, Err: err}
}

// segmentsFromResults maps each recognition result to one segment starting at
// its first word. Results without word timings start where the previous
// result ended.
func segmentsFromResults(results []*speechpb.SpeechRecognitionResult) []models.TranscriptSegment {
	var (
		segs    []models.TranscriptSegment
		lastEnd time.Duration
	)
	for _, r := range results {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		alt := r.GetAlternatives()[0]
		text := strings.TrimSpace(alt.GetTranscript())
		if text == "" {
			continue
		}

		start := lastEnd
		if words := alt.GetWords(); len(words) > 0 && words[0].GetStartTime() != nil {
			start = words[0].GetStartTime().AsDuration()
		}
		if start < lastEnd {
			start = lastEnd
		}

		segs = append(segs, models.TranscriptSegment{StartOffset: start, Text: " " + text})

		if end := r.GetResultEndTime(); end != nil && end.AsDuration() > lastEnd {
			lastEnd = end.AsDuration()
		} else {
			lastEnd = start
		}
	}
	return segs
}

// parseAudioEncoding converts string encoding to Google's enum.
func parseAudioEncoding(encoding string) speechpb.RecognitionConfig_AudioEncoding {
	switch encoding {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}
