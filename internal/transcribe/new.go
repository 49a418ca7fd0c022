package transcribe

import (
	"errors"
	"fmt"

	"github.com/anatolykoptev/go_vidqa/internal/engine"
)

// FromConfig builds the backend selected by TRANSCRIBER.
func FromConfig(c engine.Config) (Transcriber, error) {
	switch c.Transcriber {
	case "", "assemblyai":
		if c.AssemblyAIKey == "" {
			return nil, errors.New("transcribe: ASSEMBLYAI_API_KEY is required for the assemblyai backend")
		}
		return NewAssemblyAI(c.AssemblyAIKey, c.AssemblyAIPollInterval, c.TranscribeExpected), nil
	case "whisper":
		return &Whisper{Bin: c.WhisperBin, Model: c.WhisperModel, FFmpeg: c.FFmpegBin, Threads: c.WhisperThreads}, nil
	default:
		return nil, fmt.Errorf("transcribe: unknown backend %q", c.Transcriber)
	}
}
