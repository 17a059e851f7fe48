package domain

import "errors"

// ErrToolLoopLimit is returned when a turn exhausts its tool rounds without
// the model ending the turn.
var ErrToolLoopLimit = errors.New("tool loop limit exceeded")
