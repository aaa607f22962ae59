package playback

import "errors"

var (
	// ErrAlreadyPlaying is returned when trying to play while already playing.
	ErrAlreadyPlaying = errors.New("trajectory already playing")

	// ErrEmptyTrajectory is returned when there are no samples to play.
	ErrEmptyTrajectory = errors.New("empty trajectory")
)
