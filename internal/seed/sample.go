package seed

import (
	_ "embed"
	"time"

	"github.com/tomasr8/new-timetable/internal/model"
)

//go:embed sample.yaml
var sampleYAML []byte

// Sample returns the built-in demo day: a handful of talks and breaks plus two
// sessions with their own contributions.
func Sample(loc *time.Location) ([]model.Entry, error) {
	return Parse(sampleYAML, loc)
}
