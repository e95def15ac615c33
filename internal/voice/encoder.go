package voice

import (
	"fmt"

	"github.com/asticode/go-astiav"
)

const (
	sampleRate = 48000
	channels   = 2
	frameSize  = 960 // samples per channel, 20 ms at 48 kHz
	// FrameBytes is one 20 ms frame of interleaved s16le stereo PCM.
	FrameBytes = frameSize * channels * 2
)

type opusPacketFunc func(pkt []byte) error

// encoder wraps a libopus codec context producing 20 ms Opus packets from
// raw PCM frames.
type encoder struct {
	cc     *astiav.CodecContext
	frame  *astiav.Frame
	packet *astiav.Packet
}

func newEncoder() (*encoder, error) {
	codec := astiav.FindEncoderByName("libopus")
	if codec == nil {
		return nil, fmt.Errorf("libopus encoder not found (check ffmpeg installation)")
	}

	cc := astiav.AllocCodecContext(codec)
	if cc == nil {
		return nil, fmt.Errorf("allocate libopus codec context")
	}
	cc.SetSampleRate(sampleRate)
	cc.SetChannelLayout(astiav.ChannelLayoutStereo)
	cc.SetSampleFormat(astiav.SampleFormatS16)
	cc.SetBitRate(160_000)

	opts := astiav.NewDictionary()
	defer opts.Free()
	_ = opts.Set("frame_duration", "20", 0)
	_ = opts.Set("application", "audio", 0)

	if err := cc.Open(codec, opts); err != nil {
		cc.Free()
		return nil, fmt.Errorf("open opus encoder: %w", err)
	}

	frame := astiav.AllocFrame()
	if frame == nil {
		cc.Free()
		return nil, fmt.Errorf("allocate encoder frame")
	}
	frame.SetSampleRate(sampleRate)
	frame.SetChannelLayout(astiav.ChannelLayoutStereo)
	frame.SetSampleFormat(astiav.SampleFormatS16)
	frame.SetNbSamples(frameSize)
	if err := frame.AllocBuffer(0); err != nil {
		frame.Free()
		cc.Free()
		return nil, fmt.Errorf("allocate frame buffer: %w", err)
	}

	pkt := astiav.AllocPacket()
	if pkt == nil {
		frame.Free()
		cc.Free()
		return nil, fmt.Errorf("allocate encoder packet")
	}

	return &encoder{cc: cc, frame: frame, packet: pkt}, nil
}

func (e *encoder) close() {
	if e.packet != nil {
		e.packet.Free()
	}
	if e.frame != nil {
		e.frame.Free()
	}
	if e.cc != nil {
		e.cc.Free()
	}
}

// encodeFrame consumes exactly FrameBytes of interleaved s16le PCM and
// emits the resulting Opus packets.
func (e *encoder) encodeFrame(pcm []byte, onPacket opusPacketFunc) error {
	if len(pcm) != FrameBytes {
		return fmt.Errorf("invalid PCM frame size: want %d bytes, got %d", FrameBytes, len(pcm))
	}

	if err := e.frame.Data().SetBytes(pcm, 0); err != nil {
		return fmt.Errorf("set frame data: %w", err)
	}
	if err := e.cc.SendFrame(e.frame); err != nil {
		return fmt.Errorf("send frame to encoder: %w", err)
	}
	return e.drain(onPacket)
}

// flush drains buffered packets at end of stream.
func (e *encoder) flush(onPacket opusPacketFunc) error {
	if err := e.cc.SendFrame(nil); err != nil {
		if astErr, ok := err.(astiav.Error); ok && astErr.Is(astiav.ErrEof) {
			return nil
		}
		return fmt.Errorf("send flush frame: %w", err)
	}
	return e.drain(onPacket)
}

func (e *encoder) drain(onPacket opusPacketFunc) error {
	for {
		e.packet.Unref()
		if err := e.cc.ReceivePacket(e.packet); err != nil {
			if astErr, ok := err.(astiav.Error); ok && (astErr.Is(astiav.ErrEagain) || astErr.Is(astiav.ErrEof)) {
				return nil
			}
			return fmt.Errorf("receive opus packet: %w", err)
		}
		if err := onPacket(e.packet.Data()); err != nil {
			return err
		}
	}
}
