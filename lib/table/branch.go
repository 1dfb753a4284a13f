package table

import (
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"
)

// BranchID identifies a branch: a contiguous run of writes authored by one primary.
type BranchID uuid.UUID

// NilBranch is the branch of a table that never had a primary.
var NilBranch = BranchID(uuid.Nil)

// NewBranchID returns a random branch id.
func NewBranchID() BranchID {
	return BranchID(uuid.New())
}

// ParseBranchID parses the canonical uuid form.
func ParseBranchID(s string) (BranchID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return NilBranch, err
	}
	return BranchID(id), nil
}

func (b BranchID) IsNil() bool { return b == NilBranch }

func (b BranchID) String() string { return uuid.UUID(b).String() }

func (b BranchID) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

func (b *BranchID) UnmarshalText(data []byte) error {
	id, err := uuid.ParseBytes(data)
	if err != nil {
		return err
	}
	*b = BranchID(id)
	return nil
}

// Version is a position in the history of a table: the number of writes
// applied (Timestamp) on a branch.
type Version struct {
	Branch    BranchID `json:"branch" msgpack:"branch"`
	Timestamp uint64   `json:"timestamp" msgpack:"timestamp"`
}

func (v Version) String() string {
	return v.Branch.String() + "@" + strconv.FormatUint(v.Timestamp, 10)
}

// Region is the key range of a table shard. An empty End is unbounded.
type Region struct {
	Table string `json:"table" msgpack:"table"`
	Start string `json:"start,omitempty" msgpack:"start"`
	End   string `json:"end,omitempty" msgpack:"end"`
}

func (r Region) String() string {
	end := strconv.Quote(r.End)
	if r.End == "" {
		end = "+inf"
	}
	return fmt.Sprintf("%s[%q, %s)", r.Table, r.Start, end)
}

// BranchBirthCertificate records where a branch forked off its parent.
type BranchBirthCertificate struct {
	Region           Region  `json:"region" msgpack:"region"`
	Origin           Version `json:"origin" msgpack:"origin"`
	InitialTimestamp uint64  `json:"initial_timestamp" msgpack:"initial_timestamp"`
}

// BranchHistory holds the birth certificates of all known branches.
type BranchHistory map[BranchID]BranchBirthCertificate

// Clone returns a copy of h.
func (h BranchHistory) Clone() BranchHistory {
	out := make(BranchHistory, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Project returns how far v agrees with the history that ends at branch
// onto: the number of writes of v that are also writes of onto's ancestry.
// A version on a branch that forked away is clipped at the fork point. Unknown
// branches project to 0.
func (h BranchHistory) Project(v Version, onto BranchID) uint64 {
	// upper timestamp bound of every branch on the path to onto
	limit := map[BranchID]uint64{onto: math.MaxUint64}
	for b := onto; ; {
		cert, ok := h[b]
		if !ok {
			break
		}
		parent := cert.Origin.Branch
		if _, seen := limit[parent]; seen {
			break
		}
		limit[parent] = cert.Origin.Timestamp
		if parent.IsNil() {
			break
		}
		b = parent
	}

	cur := v
	for hops := 0; hops <= len(h); hops++ {
		if upper, ok := limit[cur.Branch]; ok {
			return min(cur.Timestamp, upper)
		}
		cert, ok := h[cur.Branch]
		if !ok {
			return 0
		}
		cur = Version{Branch: cert.Origin.Branch, Timestamp: min(cur.Timestamp, cert.Origin.Timestamp)}
	}
	return 0
}

// --------------------------------------------------------------------------
// Branch makers
// --------------------------------------------------------------------------

// BranchMaker mints the branch of a newly elected primary. origin is the
// version the primary reported when it was elected.
type BranchMaker func(region Region, server ServerID, origin Version) BranchID

// branchNamespace seeds DeterministicBranchMaker.
var branchNamespace = uuid.MustParse("8c5f3f0e-0b7c-4a52-9a0b-5d1de2a1b7e4")

// DeterministicBranchMaker derives the branch id from its inputs (uuid v5),
// so the same election always yields the same branch.
func DeterministicBranchMaker(region Region, server ServerID, origin Version) BranchID {
	name := region.String() + "|" + string(server) + "|" + origin.String()
	return BranchID(uuid.NewSHA1(branchNamespace, []byte(name)))
}

// RandomBranchMaker mints a fresh random branch id for every election.
func RandomBranchMaker(Region, ServerID, Version) BranchID {
	return NewBranchID()
}
