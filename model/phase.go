package model

// Phase is the simulation phase driven by the tick loop.
type Phase string

const (
	PhaseNone  Phase = "none"
	PhaseHello Phase = "hello"
	PhaseLSA   Phase = "lsa"
)
