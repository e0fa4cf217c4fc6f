package protocol

import (
	"time"

	"github.com/a7g4/warp/internal/wire"
)

// Timestamp is a Unix-epoch millisecond timestamp carried by most messages.
type Timestamp int64

// Now returns the current time as a Timestamp.
func Now() Timestamp {
	return TimestampFromTime(time.Now())
}

func TimestampFromTime(t time.Time) Timestamp {
	return Timestamp(t.UnixMilli())
}

func (t Timestamp) Time() time.Time {
	return time.UnixMilli(int64(t))
}

func encodeTimestamp(dst []byte, t Timestamp) []byte {
	return wire.PutUint64(dst, uint64(t))
}

func decodeTimestamp(src []byte) (Timestamp, []byte, error) {
	v, rest, err := wire.TakeUint64(src)
	if err != nil {
		return 0, nil, err
	}
	return Timestamp(v), rest, nil
}
