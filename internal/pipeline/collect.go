package pipeline

import (
	"errors"
	"iter"

	"github.com/anatolykoptev/go_vidqa/internal/progress"
)

// errNoTerminal is returned when a sequence ends without Done or Error,
// which only happens if the producer was abandoned.
var errNoTerminal = errors.New("pipeline: run ended without a result")

// Collect drains seq, passing every event to observe (which may be nil),
// and returns the terminal outcome.
func Collect(seq iter.Seq[progress.Event], observe func(progress.Event)) (progress.Done, error) {
	for ev := range seq {
		if observe != nil {
			observe(ev)
		}
		switch ev := ev.(type) {
		case progress.Done:
			return ev, nil
		case progress.Error:
			if ev.Err == nil {
				return progress.Done{}, errors.New(ev.Message())
			}
			return progress.Done{}, ev.Err
		}
	}
	return progress.Done{}, errNoTerminal
}
