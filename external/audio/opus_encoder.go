//go:build opus

package audio

import (
	"fmt"

	"github.com/hraban/opus"
)

const encoderBitrate = 96000

type opusEncoder struct {
	enc *opus.Encoder
	buf []byte
}

func newOpusEncoder() (frameEncoder, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	if err := enc.SetBitrate(encoderBitrate); err != nil {
		return nil, fmt.Errorf("set opus bitrate: %w", err)
	}
	return &opusEncoder{enc: enc, buf: make([]byte, maxOpusFrameBytes)}, nil
}

func (e *opusEncoder) Encode(pcm []int16) ([]byte, error) {
	n, err := e.enc.Encode(pcm, e.buf)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, n)
	copy(frame, e.buf[:n])
	return frame, nil
}
