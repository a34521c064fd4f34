/*
Package flowgraph allows to build streaming dataflow graphs of signal
processing blocks.

Concept

A flowgraph is a directed graph of blocks connected by typed ports. Stream
ports carry continuous items through bounded ring buffers, message ports
carry discrete asynchronous payloads through unbounded queues:

    Source - block without stream inputs;
    Processor - block with stream inputs and outputs;
    Sink - block without stream outputs.

The graph decomposes into connected partitions. Every partition is executed
by its own scheduler goroutine, so buffers are never shared between
goroutines.

Blocks

Blocks embed Base, which holds the port set declared with a Signature and
the scheduling settings: history, output multiple, relative rate, fixed
rate flag and tag policy. Block implements Work, which receives a Work
record with input windows and output space:

    func (b *Gain) Work(w *flowgraph.Work) (flowgraph.Status, error) {
        in := flowgraph.Float32s(w.Inputs[0].New())
        out := flowgraph.Float32s(w.Outputs[0].Items)
        n := w.Outputs[0].N
        for i := 0; i < n; i++ {
            out[i] = in[i] * b.gain
        }
        return flowgraph.WorkOK, w.Complete(n)
    }

Consumed and produced counts are committed after work returns. Exceeding
the window bounds is a programming error, fatal to the partition.

Mutations

Base embeds mutable.Context, so the state of a block can be changed with
mutations pushed into a running flowgraph. They are applied by the
partition scheduler between two work calls.

Graph

Graph holds edges and assigns every block a unique alias. It is validated
before the run: every mandatory port must be connected. See run package
for the execution.
*/
package flowgraph
