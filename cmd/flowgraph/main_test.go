package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipelined/flowgraph"
	"github.com/pipelined/flowgraph/blocks"
	"github.com/pipelined/flowgraph/run"
)

func execute(args ...string) (int, string) {
	var out bytes.Buffer
	a := app{
		args:   append([]string{"flowgraph"}, args...),
		stdout: &out,
	}
	return a.run(), out.String()
}

func TestUsage(t *testing.T) {
	code, out := execute()
	assert.Equal(t, errorExitCode, code)
	assert.Contains(t, out, "Usage: flowgraph <command>")

	code, _ = execute("unknown")
	assert.Equal(t, errorExitCode, code)
}

func TestList(t *testing.T) {
	code, out := execute("list")
	assert.Equal(t, successExitCode, code)
	for name := range demos {
		assert.Contains(t, out, name)
	}
}

func TestRun(t *testing.T) {
	var tests = []struct {
		graph    string
		expected []string
	}{
		{graph: "gain", expected: []string{"vector_source(0)", "tag_debug(3)"}},
		{graph: "decimate", expected: []string{"keep_one_in_n(2)", "null_sink(3)"}},
		{graph: "moving-sum", expected: []string{"moving_sum(2)"}},
	}
	for _, c := range tests {
		t.Run(c.graph, func(t *testing.T) {
			code, out := execute("run", "-graph", c.graph, "-items", "1000")
			require.Equal(t, successExitCode, code, out)
			assert.Contains(t, out, "BLOCK")
			for _, e := range c.expected {
				assert.Contains(t, out, e)
			}
		})
	}
}

func TestRunStrobe(t *testing.T) {
	code, out := execute("run", "-graph", "strobe", "-duration", "300ms")
	assert.Equal(t, successExitCode, code, out)
}

func TestRunFailed(t *testing.T) {
	code, out := execute("run", "-graph", "missing")
	assert.Equal(t, errorExitCode, code)
	assert.Contains(t, out, "unknown graph")

	code, out = execute("run", "-graph", "wav")
	assert.Equal(t, errorExitCode, code)
	assert.Contains(t, out, "requires -in and -out")
}

func TestRunWav(t *testing.T) {
	dir := t.TempDir()
	in, out := filepath.Join(dir, "in.wav"), filepath.Join(dir, "out.wav")

	sink, err := blocks.NewWavSink(in, 8000, 1, 16)
	require.NoError(t, err)
	g := flowgraph.New()
	require.NoError(t, g.Chain(blocks.NewVectorSource([]float32{0.5, -0.5, 0.25, 0}, false), sink))
	r, err := run.New(g)
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Wait())

	code, output := execute("run", "-graph", "wav", "-in", in, "-out", out, "-gain", "2")
	require.Equal(t, successExitCode, code, output)
	sampleRate, channels, bitDepth, err := wavFormat(out)
	require.NoError(t, err)
	assert.Equal(t, []int{8000, 1, 16}, []int{sampleRate, channels, bitDepth})
}
