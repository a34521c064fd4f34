package flowgraph

import (
	"fmt"

	"go.uber.org/multierr"
)

// Endpoint references a port of a block, either by stream index or by name.
// Endpoint with nil Block is a graph boundary placeholder.
type Endpoint struct {
	Block Block
	Index int
	Name  string
}

// At references stream port i of the block.
func At(b Block, i int) Endpoint {
	return Endpoint{Block: b, Index: i}
}

// Named references the port of the block with the name. Stream ports take
// precedence over message ports with the same name.
func Named(b Block, name string) Endpoint {
	return Endpoint{Block: b, Name: name}
}

// Boundary is an endpoint with no block.
var Boundary = Endpoint{}

func (e Endpoint) resolve(dir Direction) (*Port, error) {
	if e.Name != "" {
		return e.Block.Ports().Find(dir, e.Name)
	}
	return e.Block.Ports().Stream(dir, e.Index)
}

// Edge connects an output port to an input port. One side is nil for
// boundary edges.
type Edge struct {
	Src *Port
	Dst *Port
}

// Kind returns the kind of the connected ports.
func (e Edge) Kind() PortKind {
	if e.Src != nil {
		return e.Src.kind
	}
	return e.Dst.kind
}

// Complete reports whether both sides are set.
func (e Edge) Complete() bool {
	return e.Src != nil && e.Dst != nil
}

func (e Edge) String() string {
	return fmt.Sprintf("%v -> %v", e.Src, e.Dst)
}

// Graph is the topology of blocks connected with stream and message edges.
// It's not safe for concurrent use.
type Graph struct {
	edges   []Edge
	orphans []Block
	added   []Block

	// first-seen order of every known block.
	order    []Block
	aliases  map[Block]string
	registry map[string]Block
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		aliases:  make(map[Block]string),
		registry: make(map[string]Block),
	}
}

// Connect creates an edge from the src output port to the dst input port.
// When one side is a Boundary, the other block is registered as an orphan.
func (g *Graph) Connect(src, dst Endpoint) (Edge, error) {
	if src.Block == nil && dst.Block == nil {
		return Edge{}, fmt.Errorf("%w: both endpoints are empty", ErrInvalidArgument)
	}
	var (
		e   Edge
		err error
	)
	if src.Block != nil {
		if e.Src, err = src.resolve(Out); err != nil {
			return Edge{}, fmt.Errorf("source %s: %w", src.Block.Name(), err)
		}
	}
	if dst.Block != nil {
		if e.Dst, err = dst.resolve(In); err != nil {
			return Edge{}, fmt.Errorf("destination %s: %w", dst.Block.Name(), err)
		}
	}

	if !e.Complete() {
		b := src.Block
		if b == nil {
			b = dst.Block
		}
		g.seen(b)
		if !contains(g.orphans, b) {
			g.orphans = append(g.orphans, b)
		}
		g.realias()
		return e, nil
	}

	if err := g.check(e); err != nil {
		return Edge{}, err
	}
	if e.Kind() == MessagePort && g.find(e.Src, e.Dst) >= 0 {
		return e, nil
	}
	g.seen(src.Block)
	g.seen(dst.Block)
	g.edges = append(g.edges, e)
	e.Src.Connect(e.Dst)
	e.Dst.Connect(e.Src)
	g.realias()
	return e, nil
}

func (g *Graph) check(e Edge) error {
	if e.Src.kind != e.Dst.kind {
		return fmt.Errorf("%w: %v port %v connected to %v port %v", ErrInvalidArgument, e.Src.kind, e.Src, e.Dst.kind, e.Dst)
	}
	if e.Src.kind != StreamPort {
		return nil
	}
	if s, d := e.Src.ItemSize(), e.Dst.ItemSize(); s != 0 && d != 0 && s != d {
		return fmt.Errorf("%w: %v itemsize %d, %v itemsize %d", ErrTypeMismatch, e.Src, s, e.Dst, d)
	}
	for _, existing := range g.edges {
		if existing.Dst == e.Dst {
			return fmt.Errorf("%w: %v is bound to %v", ErrPortInUse, e.Dst, existing.Src)
		}
	}
	return nil
}

// Chain connects stream port 0 of every block to stream port 0 of the next.
func (g *Graph) Chain(blocks ...Block) error {
	for i := 1; i < len(blocks); i++ {
		if _, err := g.Connect(At(blocks[i-1], 0), At(blocks[i], 0)); err != nil {
			return err
		}
	}
	return nil
}

// Disconnect removes the edge between the ports.
func (g *Graph) Disconnect(src, dst Endpoint) error {
	if src.Block == nil || dst.Block == nil {
		return fmt.Errorf("%w: boundary edges can't be disconnected", ErrInvalidArgument)
	}
	sp, err := src.resolve(Out)
	if err != nil {
		return fmt.Errorf("source %s: %w", src.Block.Name(), err)
	}
	dp, err := dst.resolve(In)
	if err != nil {
		return fmt.Errorf("destination %s: %w", dst.Block.Name(), err)
	}
	i := g.find(sp, dp)
	if i < 0 {
		return fmt.Errorf("%w: %v -> %v", ErrEdgeNotFound, sp, dp)
	}
	g.edges = append(g.edges[:i], g.edges[i+1:]...)
	sp.Disconnect(dp)
	dp.Disconnect(sp)
	// endpoints left without edges stay known as orphans
	for _, b := range []Block{src.Block, dst.Block} {
		if !g.connected(b) && !contains(g.orphans, b) {
			g.orphans = append(g.orphans, b)
		}
	}
	g.realias()
	return nil
}

// Add registers blocks that are not connected to anything.
func (g *Graph) Add(blocks ...Block) {
	for _, b := range blocks {
		g.seen(b)
		if !contains(g.added, b) {
			g.added = append(g.added, b)
		}
	}
	g.realias()
}

// Edges returns all edges in creation order.
func (g *Graph) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

// StreamEdges returns stream edges in creation order.
func (g *Graph) StreamEdges() []Edge {
	var edges []Edge
	for _, e := range g.edges {
		if e.Kind() == StreamPort {
			edges = append(edges, e)
		}
	}
	return edges
}

// UsedNodes returns blocks touched by any edge and orphans, in first-seen
// order.
func (g *Graph) UsedNodes() []Block {
	used := make([]Block, 0, len(g.order))
	for _, b := range g.order {
		if contains(g.orphans, b) || g.connected(b) {
			used = append(used, b)
		}
	}
	return used
}

// AllNodes returns used nodes and blocks registered with Add.
func (g *Graph) AllNodes() []Block {
	all := make([]Block, 0, len(g.order))
	for _, b := range g.order {
		if contains(g.orphans, b) || contains(g.added, b) || g.connected(b) {
			all = append(all, b)
		}
	}
	return all
}

// Alias returns unique display name of the block.
func (g *Graph) Alias(b Block) string {
	return g.aliases[b]
}

// Lookup returns the block with the alias.
func (g *Graph) Lookup(alias string) (Block, bool) {
	b, ok := g.registry[alias]
	return b, ok
}

// Validate checks that every mandatory port has an edge. All issues are
// reported together.
func (g *Graph) Validate() error {
	var err error
	for _, b := range g.AllNodes() {
		ports := b.Ports()
		for _, p := range ports.StreamInputs {
			if n := g.degree(p); !p.optional && n != 1 {
				err = multierr.Append(err, g.issue(b, p, n, "exactly one"))
			}
		}
		for _, p := range ports.StreamOutputs {
			if n := g.degree(p); !p.optional && n < 1 {
				err = multierr.Append(err, g.issue(b, p, n, "at least one"))
			}
		}
		for _, p := range ports.All() {
			if n := g.degree(p); p.kind == MessagePort && !p.optional && n < 1 {
				err = multierr.Append(err, g.issue(b, p, n, "at least one"))
			}
		}
	}
	return err
}

func (g *Graph) issue(b Block, p *Port, n int, want string) error {
	return fmt.Errorf("%w: block %s: mandatory %v %v port %d (%s) has %d edges, want %s",
		ErrValidation, g.aliases[b], p.dir, p.kind, p.index, p.name, n, want)
}

// Partition returns connected components of blocks that have at least one
// edge. Direction of edges is ignored. Components are ordered by the first
// seen block and contain blocks in first-seen order.
func (g *Graph) Partition() [][]Block {
	adjacency := make(map[Block][]Block)
	for _, e := range g.edges {
		s, d := e.Src.owner, e.Dst.owner
		adjacency[s] = append(adjacency[s], d)
		adjacency[d] = append(adjacency[d], s)
	}

	visited := make(map[Block]bool)
	var partitions [][]Block
	for _, b := range g.order {
		if visited[b] || len(adjacency[b]) == 0 {
			continue
		}
		members := make(map[Block]bool)
		stack := []Block{b}
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if visited[n] {
				continue
			}
			visited[n] = true
			members[n] = true
			stack = append(stack, adjacency[n]...)
		}
		component := make([]Block, 0, len(members))
		for _, n := range g.order {
			if members[n] {
				component = append(component, n)
			}
		}
		partitions = append(partitions, component)
	}
	return partitions
}

// Isolated returns known blocks without complete edges.
func (g *Graph) Isolated() []Block {
	var isolated []Block
	for _, b := range g.AllNodes() {
		if !g.connected(b) {
			isolated = append(isolated, b)
		}
	}
	return isolated
}

// Clear removes every edge and block.
func (g *Graph) Clear() {
	for _, e := range g.edges {
		e.Src.Disconnect(e.Dst)
		e.Dst.Disconnect(e.Src)
	}
	g.edges = nil
	g.orphans = nil
	g.added = nil
	g.order = nil
	g.realias()
}

func (g *Graph) seen(b Block) {
	if contains(g.order, b) {
		return
	}
	b.Ports().bind(b)
	g.order = append(g.order, b)
}

// realias assigns name(index) aliases by first-seen order of known blocks.
func (g *Graph) realias() {
	g.aliases = make(map[Block]string)
	g.registry = make(map[string]Block)
	for i, b := range g.AllNodes() {
		alias := fmt.Sprintf("%s(%d)", b.Name(), i)
		g.aliases[b] = alias
		g.registry[alias] = b
	}
}

func (g *Graph) connected(b Block) bool {
	for _, e := range g.edges {
		if e.Src.owner == b || e.Dst.owner == b {
			return true
		}
	}
	return false
}

func (g *Graph) degree(p *Port) int {
	n := 0
	for _, e := range g.edges {
		if e.Src == p || e.Dst == p {
			n++
		}
	}
	return n
}

func (g *Graph) find(src, dst *Port) int {
	for i, e := range g.edges {
		if e.Src == src && e.Dst == dst {
			return i
		}
	}
	return -1
}

func contains(blocks []Block, b Block) bool {
	for _, v := range blocks {
		if v == b {
			return true
		}
	}
	return false
}
