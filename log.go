package docksmaker

import (
	"io"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// NewLogger returns a logfmt logger writing to w. Debug messages are dropped unless debug is set.
func NewLogger(w io.Writer, debug bool) log.Logger {
	klog := log.NewLogfmtLogger(log.NewSyncWriter(w))
	klog = log.With(klog, "ts", log.DefaultTimestampUTC)
	if debug {
		return level.NewFilter(klog, level.AllowDebug())
	}
	return level.NewFilter(klog, level.AllowInfo())
}

func orNop(l log.Logger) log.Logger {
	if l == nil {
		return log.NewNopLogger()
	}
	return l
}
