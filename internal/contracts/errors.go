package contracts

import "errors"

// ErrNoCalendar means the trading-calendar collaborator returned no
// usable days for the requested range. Fatal for a run.
var ErrNoCalendar = errors.New("trading calendar returned no days")
