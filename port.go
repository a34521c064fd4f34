package flowgraph

import "fmt"

// Direction of a port.
type Direction int

// Port directions.
const (
	In Direction = iota
	Out
)

func (d Direction) String() string {
	if d == In {
		return "input"
	}
	return "output"
}

// PortKind distinguishes stream ports from message ports.
type PortKind int

// Port kinds.
const (
	StreamPort PortKind = iota
	MessagePort
)

func (k PortKind) String() string {
	if k == StreamPort {
		return "stream"
	}
	return "message"
}

type (
	// Stream declares a stream port. Multiplicity above one replicates the
	// port, the replicas are named with a numeric suffix.
	Stream struct {
		Name         string
		Descriptor   Descriptor
		Optional     bool
		Multiplicity int
	}

	// Msg declares a message port. Message ports are optional unless
	// Required is set.
	Msg struct {
		Name     string
		Required bool
	}

	// Signature is the fixed set of ports a block declares at construction.
	Signature struct {
		Inputs         []Stream
		Outputs        []Stream
		MessageInputs  []Msg
		MessageOutputs []Msg
	}
)

// Port is a named, typed endpoint of a block.
type Port struct {
	name         string
	index        int
	dir          Direction
	kind         PortKind
	desc         Descriptor
	optional     bool
	multiplicity int
	owner        Block

	peers   []*Port
	queue   *MessageQueue
	handler MessageHandler
}

// Name returns the port name.
func (p *Port) Name() string { return p.name }

// Index returns the position of the port among ports of the same kind and
// direction.
func (p *Port) Index() int { return p.index }

// Direction returns the port direction.
func (p *Port) Direction() Direction { return p.dir }

// Kind returns the port kind.
func (p *Port) Kind() PortKind { return p.kind }

// Descriptor returns the item descriptor of stream ports.
func (p *Port) Descriptor() Descriptor { return p.desc }

// ItemSize returns the item size in bytes, zero for untyped and message
// ports.
func (p *Port) ItemSize() int { return p.desc.ItemSize() }

// Optional reports whether the port may stay unconnected.
func (p *Port) Optional() bool { return p.optional }

// Multiplicity returns the replication factor of the declaration the port
// was created from.
func (p *Port) Multiplicity() int { return p.multiplicity }

// Block returns the owning block. It is set when the block joins a graph.
func (p *Port) Block() Block { return p.owner }

// Peers returns connected ports.
func (p *Port) Peers() []*Port {
	return append([]*Port(nil), p.peers...)
}

// Connect adds other to the connected peers. It's idempotent.
func (p *Port) Connect(other *Port) {
	for _, peer := range p.peers {
		if peer == other {
			return
		}
	}
	p.peers = append(p.peers, other)
}

// Disconnect removes one occurrence of other from the peers.
func (p *Port) Disconnect(other *Port) bool {
	for i, peer := range p.peers {
		if peer == other {
			p.peers = append(p.peers[:i], p.peers[i+1:]...)
			return true
		}
	}
	return false
}

// Queue returns the queue of an input message port, nil otherwise.
func (p *Port) Queue() *MessageQueue { return p.queue }

// Handler returns the handler registered for an input message port.
func (p *Port) Handler() MessageHandler { return p.handler }

// PushMessage delivers a message. Input ports enqueue it, output ports fan
// it out to every subscriber.
func (p *Port) PushMessage(m Message) {
	if p.kind != MessagePort {
		panic(fmt.Sprintf("push message to %v port %s", p.kind, p.name))
	}
	if p.dir == In {
		p.queue.Push(m)
		return
	}
	for _, peer := range p.peers {
		peer.PushMessage(m)
	}
}

func (p *Port) String() string {
	if p.owner != nil {
		return fmt.Sprintf("%s:%v %s %d (%s)", p.owner.Name(), p.dir, p.kind, p.index, p.name)
	}
	return fmt.Sprintf("%v %s %d (%s)", p.dir, p.kind, p.index, p.name)
}

// Ports holds the ports of one block.
type Ports struct {
	StreamInputs   []*Port
	StreamOutputs  []*Port
	MessageInputs  []*Port
	MessageOutputs []*Port
}

// NewPorts creates ports for the signature.
func NewPorts(sig Signature) *Ports {
	return &Ports{
		StreamInputs:   streamPorts(In, sig.Inputs),
		StreamOutputs:  streamPorts(Out, sig.Outputs),
		MessageInputs:  messagePorts(In, sig.MessageInputs),
		MessageOutputs: messagePorts(Out, sig.MessageOutputs),
	}
}

func streamPorts(dir Direction, decl []Stream) []*Port {
	ports := make([]*Port, 0, len(decl))
	for _, d := range decl {
		n := d.Multiplicity
		if n < 1 {
			n = 1
		}
		for i := 0; i < n; i++ {
			name := d.Name
			if d.Multiplicity > 1 {
				name = fmt.Sprintf("%s%d", d.Name, i)
			}
			ports = append(ports, &Port{
				name:         name,
				index:        len(ports),
				dir:          dir,
				kind:         StreamPort,
				desc:         d.Descriptor,
				optional:     d.Optional,
				multiplicity: n,
			})
		}
	}
	return ports
}

func messagePorts(dir Direction, decl []Msg) []*Port {
	ports := make([]*Port, 0, len(decl))
	for i, d := range decl {
		p := &Port{
			name:         d.Name,
			index:        i,
			dir:          dir,
			kind:         MessagePort,
			optional:     !d.Required,
			multiplicity: 1,
		}
		if dir == In {
			p.queue = NewMessageQueue()
		}
		ports = append(ports, p)
	}
	return ports
}

// Stream returns stream port i of the direction.
func (ps *Ports) Stream(dir Direction, i int) (*Port, error) {
	ports := ps.StreamInputs
	if dir == Out {
		ports = ps.StreamOutputs
	}
	if i < 0 || i >= len(ports) {
		return nil, fmt.Errorf("%w: %v stream port index %d out of range [0, %d)", ErrInvalidArgument, dir, i, len(ports))
	}
	return ports[i], nil
}

// Find returns the port with the name, stream ports first.
func (ps *Ports) Find(dir Direction, name string) (*Port, error) {
	stream, msg := ps.StreamInputs, ps.MessageInputs
	if dir == Out {
		stream, msg = ps.StreamOutputs, ps.MessageOutputs
	}
	for _, p := range stream {
		if p.name == name {
			return p, nil
		}
	}
	for _, p := range msg {
		if p.name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: no %v port named %q", ErrInvalidArgument, dir, name)
}

// All returns every port.
func (ps *Ports) All() []*Port {
	all := make([]*Port, 0, len(ps.StreamInputs)+len(ps.StreamOutputs)+len(ps.MessageInputs)+len(ps.MessageOutputs))
	all = append(all, ps.StreamInputs...)
	all = append(all, ps.StreamOutputs...)
	all = append(all, ps.MessageInputs...)
	return append(all, ps.MessageOutputs...)
}

func (ps *Ports) bind(b Block) {
	for _, p := range ps.All() {
		p.owner = b
	}
}
