package notify

import "errors"

var errSubscriberFull = errors.New("notify: subscriber buffer full")
