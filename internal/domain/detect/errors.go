package detect

import "errors"

// ErrThresholds is returned when the left ratio bound exceeds the right one.
var ErrThresholds = errors.New("motor imagery thresholds out of order")
