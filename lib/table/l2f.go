package table

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// --------------------------------------------------------------------------
// F2L states
// --------------------------------------------------------------------------

// F2LState is the state a replica reports to the table leader.
type F2LState uint8

const (
	StateUnknown F2LState = iota
	SecondaryNeedPrimary
	SecondaryBackfilling
	SecondaryStreaming
	PrimaryNeedBranch
	PrimaryRunning
	PrimaryDidWarmShutdown
)

var stateNames = map[F2LState]string{
	StateUnknown:           "unknown",
	SecondaryNeedPrimary:   "secondary_need_primary",
	SecondaryBackfilling:   "secondary_backfilling",
	SecondaryStreaming:     "secondary_streaming",
	PrimaryNeedBranch:      "primary_need_branch",
	PrimaryRunning:         "primary_running",
	PrimaryDidWarmShutdown: "primary_did_warm_shutdown",
}

func (s F2LState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint8(s))
}

// ParseF2LState converts a state name (e.g. "secondary_streaming") into an F2LState.
func ParseF2LState(name string) (F2LState, error) {
	for s, n := range stateNames {
		if n == name {
			return s, nil
		}
	}
	return StateUnknown, errors.Newf("unknown f2l state %q", name)
}

func (s F2LState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *F2LState) UnmarshalText(data []byte) error {
	parsed, err := ParseF2LState(string(data))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// --------------------------------------------------------------------------
// Configuration and L2F message
// --------------------------------------------------------------------------

// ShardConfig is the desired replica placement of a table shard.
// An empty PrimaryReplica expresses no preference.
type ShardConfig struct {
	Replicas       ServerSet `json:"replicas" msgpack:"replicas"`
	PrimaryReplica ServerID  `json:"primary_replica,omitempty" msgpack:"primary_replica"`
}

// Clone returns a deep copy of c.
func (c ShardConfig) Clone() ShardConfig {
	return ShardConfig{Replicas: c.Replicas.Clone(), PrimaryReplica: c.PrimaryReplica}
}

// Primary is the current primary of a shard.
type Primary struct {
	Server       ServerID `json:"server" msgpack:"server"`
	WarmShutdown bool     `json:"warm_shutdown" msgpack:"warm_shutdown"`
}

// L2F is the leader-to-follower configuration of a shard. Values are never
// modified in place; CalculateL2F returns a new value.
type L2F struct {
	Replicas   ServerSet  `json:"replicas" msgpack:"replicas"`
	Voters     ServerSet  `json:"voters" msgpack:"voters"`
	TempVoters *ServerSet `json:"temp_voters,omitempty" msgpack:"temp_voters"`
	Primary    *Primary   `json:"primary,omitempty" msgpack:"primary"`
	Branch     BranchID   `json:"branch" msgpack:"branch"`
}

// InitialL2F returns the configuration of a new shard: every configured
// replica votes and there is no primary yet.
func InitialL2F(config ShardConfig) L2F {
	return L2F{
		Replicas: config.Replicas.Normalize(),
		Voters:   config.Replicas.Normalize(),
		Branch:   NilBranch,
	}
}

// Clone returns a deep copy of l.
func (l L2F) Clone() L2F {
	out := L2F{
		Replicas: l.Replicas.Clone(),
		Voters:   l.Voters.Clone(),
		Branch:   l.Branch,
	}
	if l.TempVoters != nil {
		tv := l.TempVoters.Clone()
		out.TempVoters = &tv
	}
	if l.Primary != nil {
		p := *l.Primary
		out.Primary = &p
	}
	return out
}

// Equal reports whether both configurations are identical.
func (l L2F) Equal(o L2F) bool {
	if !l.Replicas.Equal(o.Replicas) || !l.Voters.Equal(o.Voters) || l.Branch != o.Branch {
		return false
	}
	if (l.TempVoters == nil) != (o.TempVoters == nil) {
		return false
	}
	if l.TempVoters != nil && !l.TempVoters.Equal(*o.TempVoters) {
		return false
	}
	if (l.Primary == nil) != (o.Primary == nil) {
		return false
	}
	return l.Primary == nil || *l.Primary == *o.Primary
}

// Normalize sorts and deduplicates all server sets.
func (l L2F) Normalize() L2F {
	out := l.Clone()
	out.Replicas = out.Replicas.Normalize()
	out.Voters = out.Voters.Normalize()
	if out.TempVoters != nil {
		tv := out.TempVoters.Normalize()
		out.TempVoters = &tv
	}
	return out
}

// l2fFields has the fields of L2F without its methods, so msgpack does not
// recurse into MarshalBinary.
type l2fFields L2F

// MarshalBinary encodes l with msgpack. Server sets are sorted, so equal
// configurations always encode to identical bytes.
func (l L2F) MarshalBinary() ([]byte, error) {
	return msgpack.Marshal(l2fFields(l.Normalize()))
}

// UnmarshalBinary decodes a value produced by MarshalBinary.
func (l *L2F) UnmarshalBinary(data []byte) error {
	var out l2fFields
	if err := msgpack.Unmarshal(data, &out); err != nil {
		return errors.Wrap(err, "decode l2f")
	}
	*l = L2F(out)
	return nil
}

func (l L2F) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "replicas=%s voters=%s", l.Replicas, l.Voters)
	if l.TempVoters != nil {
		fmt.Fprintf(&sb, " temp_voters=%s", *l.TempVoters)
	}
	if l.Primary != nil {
		fmt.Fprintf(&sb, " primary=%s", l.Primary.Server)
		if l.Primary.WarmShutdown {
			sb.WriteString("(warm_shutdown)")
		}
	} else {
		sb.WriteString(" primary=none")
	}
	fmt.Fprintf(&sb, " branch=%s", l.Branch)
	return sb.String()
}
