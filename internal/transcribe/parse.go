package transcribe

import (
	"encoding/json"
	"math"
	"strings"

	spiralerr "github.com/spiralmem/spiralmem/internal/errors"
	"github.com/spiralmem/spiralmem/internal/store"
)

// whisper JSON output shapes.
type whisperOutput struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Segments []whisperSegment `json:"segments"`
}

type whisperSegment struct {
	Start      float64       `json:"start"`
	End        float64       `json:"end"`
	Text       string        `json:"text"`
	AvgLogprob float64       `json:"avg_logprob"`
	Words      []whisperWord `json:"words,omitempty"`
}

type whisperWord struct {
	Word        string  `json:"word"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability"`
}

// parseWhisperJSON converts whisper output into the stored transcript
// shape. Word timestamps are optional; segments without them still parse.
func parseWhisperJSON(data []byte) (*store.Transcript, float64, error) {
	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, 0, spiralerr.Wrap(err, spiralerr.ErrCodeTranscription, "unparseable whisper output")
	}

	t := &store.Transcript{
		Language: out.Language,
		FullText: strings.TrimSpace(out.Text),
	}

	var confidenceSum float64
	var confidenceN int
	for _, seg := range out.Segments {
		s := store.TranscriptSegment{
			Text:       strings.TrimSpace(seg.Text),
			StartSec:   seg.Start,
			EndSec:     seg.End,
			Confidence: logprobToConfidence(seg.AvgLogprob),
		}
		for _, w := range seg.Words {
			word := strings.TrimSpace(w.Word)
			if word == "" {
				continue
			}
			s.Words = append(s.Words, store.TranscriptWord{
				Word:       word,
				StartMs:    int64(w.Start * 1000),
				EndMs:      int64(w.End * 1000),
				Confidence: w.Probability,
			})
		}
		if s.Confidence > 0 {
			confidenceSum += s.Confidence
			confidenceN++
		}
		if seg.End > t.DurationSec {
			t.DurationSec = seg.End
		}
		t.Segments = append(t.Segments, s)
	}
	t.SegmentCount = len(t.Segments)

	if t.FullText == "" && t.SegmentCount > 0 {
		parts := make([]string, 0, t.SegmentCount)
		for _, s := range t.Segments {
			parts = append(parts, s.Text)
		}
		t.FullText = strings.Join(parts, " ")
	}

	var avg float64
	if confidenceN > 0 {
		avg = confidenceSum / float64(confidenceN)
	}
	return t, avg, nil
}

// logprobToConfidence maps whisper's average log probability into (0,1].
func logprobToConfidence(logprob float64) float64 {
	if logprob >= 0 {
		return 1
	}
	return math.Exp(logprob)
}
