package model

// PacketKind discriminates the packet variants.
type PacketKind string

const (
	PacketHello PacketKind = "hello"
	PacketLSA   PacketKind = "lsa"
)

// Packet is an in-flight simulation packet. The concrete type is either
// *HelloPacket or *LSAPacket.
type Packet interface {
	Kind() PacketKind
	Destination() NodeID
	Progress() float64
	References(id NodeID) bool
}

// Transit tracks how far a packet has travelled along its link, counted in
// whole ticks so that delivery happens on an exact tick.
type Transit struct {
	Elapsed  int
	Duration int
}

// Progress returns the fraction of the link traversed, in [0, 1].
func (t Transit) Progress() float64 {
	if t.Duration <= 0 {
		return 1
	}
	p := float64(t.Elapsed) / float64(t.Duration)
	if p > 1 {
		return 1
	}
	return p
}

// Advance moves the packet one tick and reports whether it has arrived.
func (t *Transit) Advance() bool {
	t.Elapsed++
	return t.Elapsed >= t.Duration
}

// HelloPacket is a neighbor-discovery announcement from Source to Target.
type HelloPacket struct {
	Transit
	Source NodeID
	Target NodeID
}

func (p *HelloPacket) Kind() PacketKind     { return PacketHello }
func (p *HelloPacket) Destination() NodeID { return p.Target }

func (p *HelloPacket) References(id NodeID) bool {
	return p.Source == id || p.Target == id
}

// LSAPacket carries one copy of an advertisement across a single link.
type LSAPacket struct {
	Transit
	LSA          LSA
	Target       NodeID
	ReceivedFrom NodeID
}

func (p *LSAPacket) Kind() PacketKind     { return PacketLSA }
func (p *LSAPacket) Destination() NodeID { return p.Target }

func (p *LSAPacket) References(id NodeID) bool {
	return p.Target == id || p.ReceivedFrom == id || p.LSA.Origin == id
}
