package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration marshals as fractional seconds, matching the original
// implementation's configuration format rather than Go's own duration
// string syntax, so existing warp-config documents stay loadable.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).Seconds())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
