package recommendations

import "errors"

var (
	// ErrInvalidPayload means the analysis response envelope itself is unusable.
	ErrInvalidPayload = errors.New("invalid analysis payload")
	// ErrInvalidRecommendation marks a single rejected recommendation.
	ErrInvalidRecommendation = errors.New("invalid recommendation")
)
