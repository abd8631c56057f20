package index

import (
	"strconv"

	"github.com/airenas/vidsearch/internal/pkg/videoindexer/api"
	"github.com/google/uuid"
)

const ticksPerSecond = 10_000_000

var docNamespace = uuid.MustParse("5b1b2c9e-4a57-4c4e-9a1c-76a3e5f4f1d2")

// Map converts transcript phrases to documents, one per phrase in the same order
func Map(src Source, tr *api.Transcript) []*Document {
	if tr == nil {
		return nil
	}
	res := make([]*Document, 0, len(tr.RecognizedPhrases))
	for i, ph := range tr.RecognizedPhrases {
		res = append(res, &Document{
			ID:        DocumentID(src.VideoID, i),
			Account:   src.Account,
			Container: src.Container,
			Blob:      src.Blob,
			VideoID:   src.VideoID,
			Index:     i,
			Phrase:    best(ph.NBest),
			Offset:    ToSeconds(ph.OffsetInTicks),
		})
	}
	return res
}

// DocumentID returns a stable id for the phrase of the video
func DocumentID(videoID string, i int) string {
	return uuid.NewSHA1(docNamespace, []byte(videoID+":"+strconv.Itoa(i))).String()
}

// ToSeconds converts 100ns ticks to whole seconds, rounding down
func ToSeconds(ticks int64) int64 {
	res := ticks / ticksPerSecond
	if ticks%ticksPerSecond < 0 {
		res--
	}
	return res
}

// best returns the first alternative with the highest confidence
func best(alts []api.Alternative) string {
	if len(alts) == 0 {
		return ""
	}
	res := alts[0]
	for _, a := range alts[1:] {
		if a.Confidence > res.Confidence {
			res = a
		}
	}
	return res.Display
}
