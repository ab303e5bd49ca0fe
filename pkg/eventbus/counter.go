package eventbus

import "time"

type Counter interface {
	IncProcessed(event string, status ProcessedStatus)
	IncError(event, handler string)
	ObserveProcessingTime(event string, duration time.Duration)
}

type ProcessedStatus string

const (
	StatusSuccess ProcessedStatus = "success"
	StatusError   ProcessedStatus = "error"
	StatusSkipped ProcessedStatus = "skipped"
	StatusDropped ProcessedStatus = "dropped"
)

type NoOpCounter struct{}

func (NoOpCounter) IncProcessed(string, ProcessedStatus)        {}
func (NoOpCounter) IncError(string, string)                     {}
func (NoOpCounter) ObserveProcessingTime(string, time.Duration) {}
