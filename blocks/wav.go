package blocks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"go.uber.org/multierr"

	"github.com/pipelined/flowgraph"
)

var (
	// ErrInvalidWav is returned when the file is not a valid wav.
	ErrInvalidWav = errors.New("wav is not valid")
	// ErrUnsupportedBitDepth is returned when unsupported bit depth is used.
	ErrUnsupportedBitDepth = errors.New("only 16, 24 and 32 bit depth is supported")
)

func validBitDepth(bitDepth int) bool {
	switch bitDepth {
	case 16, 24, 32:
		return true
	}
	return false
}

// WavSource reads interleaved samples of a wav file as float32 items in
// range [-1, 1]. The file is opened when the flowgraph starts.
type WavSource struct {
	*flowgraph.Base
	path string

	file    *os.File
	decoder *wav.Decoder
	buf     *audio.IntBuffer
	scale   float32
}

// NewWavSource creates a source of the file.
func NewWavSource(path string) *WavSource {
	return &WavSource{
		Base: flowgraph.NewBase("wav_source", flowgraph.Signature{
			Outputs: []flowgraph.Stream{{Name: "out", Descriptor: flowgraph.Scalar(flowgraph.Float32)}},
		}),
		path: path,
	}
}

// Start opens the file. Output multiple is set to number of channels, so
// every work call produces whole frames.
func (s *WavSource) Start(context.Context) error {
	file, err := os.Open(s.path)
	if err != nil {
		return err
	}
	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return multierr.Combine(fmt.Errorf("%w: %s", ErrInvalidWav, s.path), file.Close())
	}
	if !validBitDepth(int(decoder.BitDepth)) {
		return multierr.Combine(ErrUnsupportedBitDepth, file.Close())
	}
	if err := s.SetOutputMultiple(int(decoder.NumChans)); err != nil {
		return multierr.Combine(err, file.Close())
	}
	s.file, s.decoder = file, decoder
	s.buf = &audio.IntBuffer{
		Format:         decoder.Format(),
		SourceBitDepth: int(decoder.BitDepth),
	}
	s.scale = float32(math.Pow(2, float64(decoder.BitDepth)-1))
	return nil
}

// Format returns sample rate and number of channels. It's valid after
// the flowgraph started.
func (s *WavSource) Format() (sampleRate, channels int) {
	if s.decoder == nil {
		return 0, 0
	}
	return int(s.decoder.SampleRate), int(s.decoder.NumChans)
}

// Work decodes samples into the output window.
func (s *WavSource) Work(w *flowgraph.Work) (flowgraph.Status, error) {
	out := &w.Outputs[0]
	if cap(s.buf.Data) < out.N {
		s.buf.Data = make([]int, out.N)
	}
	s.buf.Data = s.buf.Data[:out.N]
	n, err := s.decoder.PCMBuffer(s.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return flowgraph.WorkOK, err
	}
	if n == 0 {
		return flowgraph.WorkDone, nil
	}
	items := flowgraph.Float32s(out.Items)
	for i, v := range s.buf.Data[:n] {
		items[i] = float32(v) / s.scale
	}
	return flowgraph.WorkOK, w.Produce(0, n)
}

// Stop closes the file.
func (s *WavSource) Stop(context.Context) error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// WavSink writes interleaved float32 items into a wav file.
type WavSink struct {
	*flowgraph.Base
	path       string
	sampleRate int
	channels   int
	bitDepth   int

	file    *os.File
	encoder *wav.Encoder
	buf     *audio.IntBuffer
	scale   float64
}

// NewWavSink creates a sink of the file.
func NewWavSink(path string, sampleRate, channels, bitDepth int) (*WavSink, error) {
	if !validBitDepth(bitDepth) {
		return nil, ErrUnsupportedBitDepth
	}
	if sampleRate < 1 || channels < 1 {
		return nil, fmt.Errorf("%w: sample rate %d, channels %d", flowgraph.ErrInvalidArgument, sampleRate, channels)
	}
	return &WavSink{
		Base: flowgraph.NewBase("wav_sink", flowgraph.Signature{
			Inputs: []flowgraph.Stream{{Name: "in", Descriptor: flowgraph.Scalar(flowgraph.Float32)}},
		}),
		path:       path,
		sampleRate: sampleRate,
		channels:   channels,
		bitDepth:   bitDepth,
	}, nil
}

// Start creates the file.
func (s *WavSink) Start(context.Context) error {
	file, err := os.Create(s.path)
	if err != nil {
		return err
	}
	s.file = file
	s.encoder = wav.NewEncoder(file, s.sampleRate, s.bitDepth, s.channels, 1)
	s.buf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: s.channels,
			SampleRate:  s.sampleRate,
		},
		SourceBitDepth: s.bitDepth,
	}
	s.scale = math.Pow(2, float64(s.bitDepth)-1)
	return nil
}

// Work encodes whole frames of the input window.
func (s *WavSink) Work(w *flowgraph.Work) (flowgraph.Status, error) {
	in := &w.Inputs[0]
	n := in.N - in.N%s.channels
	if n == 0 {
		if in.Done {
			// incomplete frame at the end is dropped
			return flowgraph.WorkDone, w.Consume(0, in.N)
		}
		return flowgraph.WorkInsufficientInput, nil
	}
	if cap(s.buf.Data) < n {
		s.buf.Data = make([]int, n)
	}
	s.buf.Data = s.buf.Data[:n]
	for i, v := range flowgraph.Float32s(in.New())[:n] {
		s.buf.Data[i] = int(math.Round(clamp(float64(v)) * (s.scale - 1)))
	}
	if err := s.encoder.Write(s.buf); err != nil {
		return flowgraph.WorkOK, err
	}
	return flowgraph.WorkOK, w.Consume(0, n)
}

// Stop finalizes the header and closes the file.
func (s *WavSink) Stop(context.Context) error {
	if s.file == nil {
		return nil
	}
	err := multierr.Combine(s.encoder.Close(), s.file.Close())
	s.file, s.encoder = nil, nil
	return err
}

func clamp(v float64) float64 {
	return max(-1, min(1, v))
}
