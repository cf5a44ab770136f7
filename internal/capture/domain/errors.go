package capture

import "errors"

var (
	// ErrDataUnavailable is returned when chart assembly produces an empty series.
	ErrDataUnavailable = errors.New("capture: no chart data")
	// ErrRenderFailure is returned when the renderer produces no image.
	ErrRenderFailure = errors.New("capture: render produced no image")
	// ErrStorageFailure is returned when the artifact store rejects a chart.
	ErrStorageFailure = errors.New("capture: artifact store failure")
	// ErrRunInProgress is returned when a capture run is already running.
	ErrRunInProgress = errors.New("capture: run already in progress")
	// ErrEmptyQueue is returned when a run is started with no queue items.
	ErrEmptyQueue = errors.New("capture: empty queue")
)
