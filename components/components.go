// Package components defines ECS components for navigation agents.
package components

import (
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/navkit/navmesh"
)

// AgentState is the navigation state machine of one agent.
type AgentState uint8

const (
	StateIdle    AgentState = iota // no active destination
	StateWaiting                   // destination accepted, path pending
	StateMoving                    // following the active path
	StateArrived                   // reached the end of the path
	StateFailed                    // last destination request failed
)

func (s AgentState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateMoving:
		return "moving"
	case StateArrived:
		return "arrived"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Transform is an entity's world position.
type Transform struct {
	Position navmesh.Vec3
}

// NavAgent holds the per-agent navigation state: the active path, the
// progress along it and the steering parameters.
type NavAgent struct {
	State  AgentState
	Target navmesh.Vec3

	// Active path. PathIndex < len(Path) whenever State is Moving; a
	// non-empty path with State Idle must not occur.
	Path      []navmesh.Vec3
	PathIndex int

	// ArrivedPartial marks that the last path was best-effort: the
	// agent arrived at the closest reachable point, not the target.
	ArrivedPartial bool

	// Steering.
	Speed            float32 // current speed, m/s
	MaxSpeed         float32
	Acceleration     float32
	Deceleration     float32
	CornerThreshold  float32 // corner advance distance
	StoppingDistance float32 // final waypoint acceptance distance

	// AreaCosts overrides the shared filter's cost table for this
	// agent's path requests, indexed by area type. Nil or short slices
	// leave the remaining areas at the shared costs; entries <= 0 are
	// ignored.
	AreaCosts []float32

	// Repath control.
	RepathInterval float32
	RepathTimer    float32

	RemainingDistance float32
}

// BehaviorType selects the autonomous policy driving an agent.
type BehaviorType uint8

const (
	BehaviorNone BehaviorType = iota
	BehaviorWander
	BehaviorPatrol
	BehaviorFollow
	BehaviorFlee
)

func (b BehaviorType) String() string {
	switch b {
	case BehaviorNone:
		return "none"
	case BehaviorWander:
		return "wander"
	case BehaviorPatrol:
		return "patrol"
	case BehaviorFollow:
		return "follow"
	case BehaviorFlee:
		return "flee"
	default:
		return "unknown"
	}
}

// PatrolMode selects how a patrol traverses its waypoint list.
type PatrolMode uint8

const (
	PatrolLoop PatrolMode = iota
	PatrolPingPong
)

// NavBehavior holds the per-agent behavior selection and its
// parameter block. Started triggers one-time initialization on the
// first update (e.g. capturing the wander origin).
type NavBehavior struct {
	Type    BehaviorType
	Started bool

	// Wander.
	WanderOrigin navmesh.Vec3
	WanderRadius float32
	WaitMin      float32
	WaitMax      float32
	WaitTimer    float32

	// Patrol.
	PatrolPoints    []navmesh.Vec3
	PatrolIndex     int
	PatrolDirection int // +1 forward, -1 backward (ping-pong)
	PatrolMode      PatrolMode
	PatrolWaitTime  float32

	// Follow.
	FollowTarget   ecs.Entity
	FollowDistance float32
	FollowInterval float32
	FollowTimer    float32

	// Flee.
	FleeFrom     navmesh.Vec3
	FleeDistance float32
	FleeAttempts int
}
