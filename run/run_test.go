package run_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pipelined/flowgraph"
	"github.com/pipelined/flowgraph/blocks"
	"github.com/pipelined/flowgraph/config"
	"github.com/pipelined/flowgraph/mock"
	"github.com/pipelined/flowgraph/monitor"
	"github.com/pipelined/flowgraph/run"
)

var (
	float32s = flowgraph.Scalar(flowgraph.Float32)
	errTest  = errors.New("test error")
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func timeout(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestRun(t *testing.T) {
	source := &mock.Source{Limit: 10000, Value: 1, Chunk: 100}
	proc := &mock.Processor{}
	sink := &mock.Sink{}

	g := flowgraph.New()
	require.NoError(t, g.Chain(source.Block(), proc.Block(), sink.Block()))
	r, err := run.New(g, run.WithConfig(config.Config{
		BufferBytes: 4096,
		MaxItems:    256,
		IdleWait:    time.Millisecond,
		LogLevel:    "error",
	}))
	require.NoError(t, err)
	assert.Equal(t, run.ErrNotStarted, r.Wait())
	require.NoError(t, r.Start(timeout(t)))
	assert.Equal(t, run.ErrStarted, r.Start(context.Background()))
	require.NoError(t, r.Wait())

	assert.Equal(t, 10000, source.Items)
	assert.Equal(t, 10000, proc.Items)
	assert.Equal(t, 10000, sink.Items)
	assert.Len(t, sink.Values(), 10000)
	for _, h := range []mock.Hooks{source.Hooks, proc.Hooks, sink.Hooks} {
		assert.True(t, h.Started)
		assert.True(t, h.Stopped)
	}
	assert.Equal(t, map[string]flowgraph.State{
		"mock.source(0)":    flowgraph.Done,
		"mock.processor(1)": flowgraph.Done,
		"mock.sink(2)":      flowgraph.Done,
	}, r.States())

	select {
	case <-r.Done():
	default:
		t.Fatal("done channel must be closed")
	}
}

func TestHistory(t *testing.T) {
	values := make([]float32, 100)
	for i := range values {
		values[i] = 1
	}
	sum, err := blocks.NewMovingSum(5, false)
	require.NoError(t, err)
	sink := blocks.NewVectorSink()
	g := flowgraph.New()
	require.NoError(t, g.Chain(blocks.NewVectorSource(values, false), sum, sink))

	r, err := run.New(g)
	require.NoError(t, err)
	require.NoError(t, r.Start(timeout(t)))
	require.NoError(t, r.Wait())

	result := sink.Values()
	assert.Len(t, result, 96)
	for _, v := range result {
		assert.Equal(t, float32(5), v)
	}
}

func TestPartitions(t *testing.T) {
	var (
		sources = []*mock.Source{{Limit: 1000}, {Limit: 2000}, {Limit: 3000}}
		sinks   = []*mock.Sink{{Discard: true}, {Discard: true}, {Discard: true}}
	)
	g := flowgraph.New()
	require.NoError(t, g.Chain(
		sources[0].Block(),
		(&mock.Processor{}).Block(),
		(&mock.Processor{}).Block(),
		sinks[0].Block(),
	))
	require.NoError(t, g.Chain(sources[1].Block(), (&mock.Processor{}).Block(), sinks[1].Block()))
	require.NoError(t, g.Chain(sources[2].Block(), sinks[2].Block()))
	assert.Len(t, g.Partition(), 3)

	r, err := run.New(g)
	require.NoError(t, err)
	require.NoError(t, r.Start(timeout(t)))
	require.NoError(t, r.Wait())

	for i := range sources {
		assert.Equal(t, sources[i].Limit, sinks[i].Items)
	}
	states := r.States()
	assert.Len(t, states, 9)
	for alias, s := range states {
		assert.Equal(t, flowgraph.Done, s, alias)
	}
}

func TestFailure(t *testing.T) {
	t.Run("work", func(t *testing.T) {
		source := &mock.Source{Limit: 1000}
		proc := &mock.Processor{ErrorOnCall: errTest}
		sink := &mock.Sink{}
		null := blocks.NewNullSink(float32s)

		g := flowgraph.New()
		require.NoError(t, g.Chain(source.Block(), proc.Block(), sink.Block()))
		require.NoError(t, g.Chain(blocks.NewNullSource(float32s), null))
		r, err := run.New(g)
		require.NoError(t, err)
		require.NoError(t, r.Start(timeout(t)))

		err = r.Wait()
		assert.ErrorIs(t, err, errTest)
		var be *flowgraph.BlockError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, "mock.processor(1)", be.Block)
		assert.True(t, sink.Stopped)
	})
	t.Run("start", func(t *testing.T) {
		source := &mock.Source{Limit: 1000}
		sink := &mock.Sink{Hooks: mock.Hooks{ErrorOnStart: errTest}}

		g := flowgraph.New()
		require.NoError(t, g.Chain(source.Block(), sink.Block()))
		r, err := run.New(g)
		require.NoError(t, err)
		require.NoError(t, r.Start(timeout(t)))

		assert.ErrorIs(t, r.Wait(), errTest)
		assert.True(t, source.Stopped)
		assert.Zero(t, sink.Calls)
	})
	t.Run("stop", func(t *testing.T) {
		source := &mock.Source{Limit: 10, Hooks: mock.Hooks{ErrorOnStop: errTest}}
		sink := &mock.Sink{}

		g := flowgraph.New()
		require.NoError(t, g.Chain(source.Block(), sink.Block()))
		r, err := run.New(g)
		require.NoError(t, err)
		require.NoError(t, r.Start(timeout(t)))

		assert.ErrorIs(t, r.Wait(), errTest)
		assert.Equal(t, 10, sink.Items)
	})
}

func TestStop(t *testing.T) {
	null := blocks.NewNullSink(float32s)
	g := flowgraph.New()
	require.NoError(t, g.Chain(blocks.NewNullSource(float32s), null))
	r, err := run.New(g)
	require.NoError(t, err)
	require.NoError(t, r.Start(timeout(t)))

	assert.Eventually(t, func() bool {
		return null.Count() > 0
	}, 5*time.Second, time.Millisecond)
	r.Stop()
	require.NoError(t, r.Wait())
}

func TestCancel(t *testing.T) {
	g := flowgraph.New()
	require.NoError(t, g.Chain(blocks.NewNullSource(float32s), blocks.NewNullSink(float32s)))
	r, err := run.New(g)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.Start(ctx))
	cancel()
	assert.ErrorIs(t, r.Wait(), context.Canceled)
}

func TestPush(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		source := &mock.Source{Limit: 10}
		sink := &mock.Sink{}
		g := flowgraph.New()
		require.NoError(t, g.Chain(source.Block(), sink.Block()))
		r, err := run.New(g)
		require.NoError(t, err)

		require.NoError(t, r.Push(source.LimitParam(20), source.ValueParam(2)))
		require.NoError(t, r.Start(timeout(t)))
		require.NoError(t, r.Wait())
		assert.Equal(t, 20, sink.Items)
		for _, v := range sink.Values() {
			assert.Equal(t, float32(2), v)
		}
	})
	t.Run("after start", func(t *testing.T) {
		source := &mock.Source{Limit: math.MaxInt}
		sink := &mock.Sink{Discard: true}
		g := flowgraph.New()
		require.NoError(t, g.Chain(source.Block(), sink.Block()))
		r, err := run.New(g)
		require.NoError(t, err)

		require.NoError(t, r.Start(timeout(t)))
		require.NoError(t, r.Push(source.LimitParam(1000)))
		require.NoError(t, r.Wait())
		assert.Equal(t, 1000, source.Limit)
		assert.Equal(t, source.Items, sink.Items)
	})
}

func TestPost(t *testing.T) {
	src, mul, snk := blocks.NewVectorSource([]float32{1, 2}, false), blocks.NewMultiplyConst(1), blocks.NewVectorSink()
	g := flowgraph.New()
	require.NoError(t, g.Chain(src, mul, snk))
	r, err := run.New(g)
	require.NoError(t, err)

	var tests = []struct {
		alias string
		port  string
	}{
		{alias: "multiply_const(7)", port: "gain"},
		{alias: "multiply_const(1)", port: "volume"},
		{alias: "multiply_const(1)", port: "in"},
	}
	for _, c := range tests {
		err := r.Post(c.alias, c.port, flowgraph.Message{Value: 2.0})
		assert.ErrorIs(t, err, flowgraph.ErrInvalidArgument, c.alias+" "+c.port)
	}

	require.NoError(t, r.Post("multiply_const(1)", "gain", flowgraph.Message{Value: 10.0}))
	require.NoError(t, r.Start(timeout(t)))
	require.NoError(t, r.Wait())
	assert.Equal(t, []float32{10, 20}, snk.Values())
}

func TestIsolated(t *testing.T) {
	source := &mock.Source{Limit: 100}
	sink := &mock.Sink{}
	strobe := blocks.NewMessageStrobe(flowgraph.Message{Key: "tick"}, time.Hour)

	g := flowgraph.New()
	require.NoError(t, g.Chain(source.Block(), sink.Block()))
	g.Add(strobe)
	assert.Equal(t, []flowgraph.Block{strobe}, g.Isolated())

	r, err := run.New(g)
	require.NoError(t, err)
	require.NoError(t, r.Start(timeout(t)))
	require.NoError(t, r.Wait())
	assert.Equal(t, 100, sink.Items)
	assert.Equal(t, flowgraph.Done, r.States()["message_strobe(2)"])
}

func TestNew(t *testing.T) {
	t.Run("empty graph", func(t *testing.T) {
		_, err := run.New(flowgraph.New())
		assert.ErrorIs(t, err, flowgraph.ErrEmptyGraph)
	})
	t.Run("validation", func(t *testing.T) {
		g := flowgraph.New()
		require.NoError(t, g.Chain((&mock.Source{}).Block(), (&mock.Processor{}).Block()))
		_, err := run.New(g)
		assert.ErrorIs(t, err, flowgraph.ErrValidation)
	})
	t.Run("config", func(t *testing.T) {
		g := flowgraph.New()
		require.NoError(t, g.Chain((&mock.Source{}).Block(), (&mock.Sink{}).Block()))
		_, err := run.New(g, run.WithConfig(config.Config{}))
		assert.ErrorIs(t, err, config.ErrInvalid)
	})
}

type proxy struct {
	id xid.ID

	mu     sync.Mutex
	events []monitor.Kind
}

func newProxy() *proxy {
	return &proxy{id: xid.New()}
}

func (p *proxy) ID() xid.ID {
	return p.id
}

func (p *proxy) Notify(e monitor.Event) {
	p.mu.Lock()
	p.events = append(p.events, e.Kind)
	p.mu.Unlock()
}

func (p *proxy) received() []monitor.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]monitor.Kind(nil), p.events...)
}

func TestProxies(t *testing.T) {
	t.Run("downstream", func(t *testing.T) {
		down := newProxy()
		g := flowgraph.New()
		require.NoError(t, g.Chain((&mock.Source{Limit: 10}).Block(), (&mock.Sink{}).Block()))
		r, err := run.New(g, run.WithProxies(nil, []monitor.Participant{down}))
		require.NoError(t, err)
		require.NoError(t, r.Start(timeout(t)))
		require.NoError(t, r.Wait())
		assert.Equal(t, []monitor.Kind{monitor.Start, monitor.Kill}, down.received())
	})
	t.Run("upstream", func(t *testing.T) {
		up := newProxy()
		g := flowgraph.New()
		require.NoError(t, g.Chain(blocks.NewNullSource(float32s), blocks.NewNullSink(float32s)))
		r, err := run.New(g, run.WithProxies([]monitor.Participant{up}, nil))
		require.NoError(t, err)
		require.NoError(t, r.Start(timeout(t)))
		r.Stop()
		require.NoError(t, r.Wait())
		assert.Equal(t, []monitor.Kind{monitor.Kill}, up.received())
	})
}
