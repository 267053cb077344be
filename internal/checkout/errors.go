package checkout

import "errors"

var IllegalTransitionError = errors.New("illegal transition of checkout state")
