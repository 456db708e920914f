package alerts

import "time"

// timeNow is swappable in tests.
var timeNow = func() time.Time { return time.Now().UTC() }
