package handler

import (
	"errors"
	"regexp"

	"github.com/goevery/tracker/internal/ierr"
)

// TopicValidator accepts only the three topic families the tracker
// broadcasts on.
type TopicValidator struct {
	topicRegex *regexp.Regexp
}

func NewTopicValidator() *TopicValidator {
	return &TopicValidator{
		topicRegex: regexp.MustCompile(`^(projects|import:[\w-]+|user:[\w-]+)$`),
	}
}

func (v *TopicValidator) Validate(topic string) error {
	valid := v.topicRegex.MatchString(topic)
	if !valid {
		return ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid topic"))
	}

	return nil
}
