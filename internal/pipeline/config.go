package pipeline

import (
	"fmt"

	"github.com/anatolykoptev/go_vidqa/internal/acquire"
	"github.com/anatolykoptev/go_vidqa/internal/captions"
	"github.com/anatolykoptev/go_vidqa/internal/engine"
	"github.com/anatolykoptev/go_vidqa/internal/transcribe"
	"github.com/anatolykoptev/go_vidqa/internal/transcript"
)

// FromConfig wires the default collaborators around store.
func FromConfig(c engine.Config, store transcript.Store) (*Pipeline, error) {
	tr, err := transcribe.FromConfig(c)
	if err != nil {
		if !c.Offline {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		// Offline runs are served from the cache only.
		tr = nil
	}
	p := &Pipeline{
		Store:             store,
		Acquirer:          acquire.NewDefaultChain(c),
		Transcriber:       tr,
		Offline:           c.Offline,
		DownloadDir:       c.DownloadDir,
		TranscribeTimeout: c.TranscribeTimeout,
	}
	if c.CaptionsFirst {
		p.Captions = captions.New(c.HTTPClient, c.CaptionLangs)
	}
	return p, nil
}
