package util

import (
	"io"
	"reflect"
)

// CloseWithErr closes c and logs a failure instead of returning it, for
// defer sites with no error path of their own. Typed-nil closers are
// ignored.
func CloseWithErr(c io.Closer, name string) {
	if c == nil {
		return
	}
	if v := reflect.ValueOf(c); v.Kind() == reflect.Ptr && v.IsNil() {
		return
	}
	if err := c.Close(); err != nil {
		if name != "" {
			Warnf("close %s: %v", name, err)
			return
		}
		Warnf("close: %v", err)
	}
}
