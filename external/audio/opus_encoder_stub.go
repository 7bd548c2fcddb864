//go:build !opus

package audio

import "errors"

var errOpusUnavailable = errors.New("opus support not compiled in; build with -tags opus")

func newOpusEncoder() (frameEncoder, error) {
	return nil, errOpusUnavailable
}
