package table

import "sort"

// Input is everything CalculateL2F looks at. The maps are only read.
type Input struct {
	Region   Region
	Old      L2F
	Config   ShardConfig
	States   map[ServerID]F2LState
	Versions map[ServerID]Version
	History  BranchHistory
	// MakeBranch mints the branch of a newly elected primary. If nil,
	// DeterministicBranchMaker is used.
	MakeBranch BranchMaker
}

// CalculateL2F computes the successor of in.Old. It is a pure function: it
// performs no I/O, never fails and returns the same result for the same input
// (given a deterministic MakeBranch).
//
// The steps run in a fixed order because later steps read what earlier steps
// wrote. When no primary can be elected safely the result has no primary; the
// next round with fresh reports tries again.
func CalculateL2F(in Input) L2F {
	in.Config.Replicas = in.Config.Replicas.Normalize()
	l := in.Old.Normalize()

	l = growReplicas(l, in)
	l = initiateVoterChange(l, in)
	l = commitVoterChange(l, in)
	l, warmShutdown := shrinkReplicas(l, in)
	if l.Primary == nil {
		l = electPrimary(l, in)
	} else {
		l = deposePrimary(l, in, warmShutdown)
	}
	return l
}

func (in Input) state(s ServerID) F2LState {
	return in.States[s]
}

func isPrimary(l L2F, s ServerID) bool {
	return l.Primary != nil && l.Primary.Server == s
}

// growReplicas adds every configured replica.
func growReplicas(l L2F, in Input) L2F {
	for _, s := range in.Config.Replicas {
		l.Replicas = l.Replicas.Add(s)
	}
	return l
}

// initiateVoterChange starts a transition to the configured replicas once more
// than half of them can already serve (streaming, or the primary itself).
func initiateVoterChange(l L2F, in Input) L2F {
	if l.TempVoters != nil || in.Config.Replicas.Equal(l.Voters) {
		return l
	}
	ready := 0
	for _, s := range in.Config.Replicas {
		if in.state(s) == SecondaryStreaming || isPrimary(l, s) {
			ready++
		}
	}
	if 2*ready > len(in.Config.Replicas) {
		tv := in.Config.Replicas.Clone()
		l.TempVoters = &tv
	}
	return l
}

// commitVoterChange finishes a transition once the primary runs, which means
// it already requires acks from both voter sets and has caught up the temp voters.
func commitVoterChange(l L2F, in Input) L2F {
	if l.TempVoters == nil || l.Primary == nil {
		return l
	}
	if in.state(l.Primary.Server) != PrimaryRunning {
		return l
	}
	l.Voters = *l.TempVoters
	l.TempVoters = nil
	return l
}

// shrinkReplicas drops replicas that are neither configured nor voting. A
// departing primary is kept and reported through the returned flag instead.
func shrinkReplicas(l L2F, in Input) (L2F, bool) {
	warmShutdown := false
	for _, s := range in.Old.Replicas {
		if in.Config.Replicas.Contains(s) || l.Voters.Contains(s) {
			continue
		}
		if l.TempVoters != nil && l.TempVoters.Contains(s) {
			continue
		}
		if isPrimary(l, s) {
			warmShutdown = true
			continue
		}
		l.Replicas = l.Replicas.Remove(s)
	}
	return l, warmShutdown
}

type candidate struct {
	server   ServerID
	ts       uint64
	reported bool
}

// electPrimary picks a voter that is at least as caught up as a majority of
// the voters and mints a new branch for it.
func electPrimary(l L2F, in Input) L2F {
	cands := make([]candidate, 0, len(l.Voters))
	for _, s := range l.Voters {
		c := candidate{server: s}
		if v, ok := in.Versions[s]; ok {
			c.ts = in.History.Project(v, in.Old.Branch)
			c.reported = true
		}
		cands = append(cands, c)
	}
	// least caught up first; voters without a version may be ahead of anyone
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.reported != b.reported {
			return a.reported
		}
		if a.ts != b.ts {
			return a.ts < b.ts
		}
		return a.server < b.server
	})

	var (
		chosen   ServerID
		found    bool
		eligible = make(map[ServerID]bool)
	)
	for i, c := range cands {
		if 2*(i+1) <= len(cands) || !c.reported || in.state(c.server) != SecondaryNeedPrimary {
			continue
		}
		eligible[c.server] = true
		chosen, found = c.server, true
	}
	if !found {
		return l
	}
	if in.Config.PrimaryReplica != "" && eligible[in.Config.PrimaryReplica] {
		chosen = in.Config.PrimaryReplica
	}

	makeBranch := in.MakeBranch
	if makeBranch == nil {
		makeBranch = DeterministicBranchMaker
	}
	l.Primary = &Primary{Server: chosen}
	l.Branch = makeBranch(in.Region, chosen, in.Versions[chosen])
	return l
}

// deposePrimary removes a primary a majority of voters cannot follow, or
// drives a warm shutdown when the primary leaves or a preferred replacement
// is ready. Removal by majority takes precedence over warm shutdown.
func deposePrimary(l L2F, in Input, warmShutdown bool) L2F {
	needPrimary := 0
	for _, s := range l.Voters {
		if in.state(s) == SecondaryNeedPrimary {
			needPrimary++
		}
	}
	if 2*needPrimary > len(l.Voters) {
		l.Primary = nil
		return l
	}

	preferred := in.Config.PrimaryReplica
	replace := preferred != "" && preferred != l.Primary.Server && in.state(preferred) == SecondaryStreaming
	if !replace && !warmShutdown {
		l.Primary.WarmShutdown = false
		return l
	}
	if in.state(l.Primary.Server) == PrimaryDidWarmShutdown {
		l.Primary = nil
		return l
	}
	l.Primary.WarmShutdown = true
	return l
}
