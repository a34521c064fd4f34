package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"

	"github.com/pipelined/flowgraph"
	"github.com/pipelined/flowgraph/blocks"
)

var float32s = flowgraph.Scalar(flowgraph.Float32)

type options struct {
	items  int
	gain   float64
	in     string
	out    string
	logger logrus.FieldLogger
}

type demo struct {
	help  string
	build func(options) (*flowgraph.Graph, error)
}

var demos = map[string]demo{
	"gain": {
		help:  "ramp multiplied by -gain, tags are logged",
		build: gainGraph,
	},
	"decimate": {
		help:  "null source decimated by 4",
		build: decimateGraph,
	},
	"moving-sum": {
		help:  "padded moving sum of ones",
		build: movingSumGraph,
	},
	"strobe": {
		help:  "periodic messages printed until -duration",
		build: strobeGraph,
	},
	"wav": {
		help:  "copy -in wav file into -out multiplied by -gain",
		build: wavGraph,
	},
}

func gainGraph(o options) (*flowgraph.Graph, error) {
	ramp := make([]float32, 8)
	for i := range ramp {
		ramp[i] = float32(i)
	}
	g := flowgraph.New()
	err := g.Chain(
		blocks.NewVectorSource(ramp, true, flowgraph.Tag{Key: "period", Value: len(ramp)}),
		blocks.NewHead(float32s, o.items),
		blocks.NewMultiplyConst(float32(o.gain)),
		blocks.NewTagDebug(float32s, o.logger),
	)
	return g, err
}

func decimateGraph(o options) (*flowgraph.Graph, error) {
	keep, err := blocks.NewKeepOneInN(float32s, 4)
	if err != nil {
		return nil, err
	}
	g := flowgraph.New()
	err = g.Chain(
		blocks.NewNullSource(float32s),
		blocks.NewHead(float32s, o.items),
		keep,
		blocks.NewNullSink(float32s),
	)
	return g, err
}

func movingSumGraph(o options) (*flowgraph.Graph, error) {
	sum, err := blocks.NewMovingSum(8, true)
	if err != nil {
		return nil, err
	}
	g := flowgraph.New()
	err = g.Chain(
		blocks.NewVectorSource([]float32{1}, true),
		blocks.NewHead(float32s, o.items),
		sum,
		blocks.NewNullSink(float32s),
	)
	return g, err
}

func strobeGraph(o options) (*flowgraph.Graph, error) {
	strobe := blocks.NewMessageStrobe(flowgraph.Message{Key: "strobe", Value: "tick"}, 100*time.Millisecond)
	g := flowgraph.New()
	_, err := g.Connect(flowgraph.Named(strobe, "strobe"), flowgraph.Named(blocks.NewMessageDebug(o.logger), "print"))
	return g, err
}

func wavGraph(o options) (*flowgraph.Graph, error) {
	if o.in == "" || o.out == "" {
		return nil, errors.New("wav graph requires -in and -out flags")
	}
	sampleRate, channels, bitDepth, err := wavFormat(o.in)
	if err != nil {
		return nil, err
	}
	sink, err := blocks.NewWavSink(o.out, sampleRate, channels, bitDepth)
	if err != nil {
		return nil, err
	}
	g := flowgraph.New()
	err = g.Chain(
		blocks.NewWavSource(o.in),
		blocks.NewMultiplyConst(float32(o.gain)),
		sink,
	)
	return g, err
}

func wavFormat(path string) (sampleRate, channels, bitDepth int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, 0, err
	}
	defer f.Close()
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return 0, 0, 0, fmt.Errorf("%w: %s", blocks.ErrInvalidWav, path)
	}
	return int(d.SampleRate), int(d.NumChans), int(d.BitDepth), nil
}
