package raftpart

import "testing"

func TestPeerDirectoryAddRemove(t *testing.T) {
	d := NewPeerDirectory()
	a := HostAddr{Host: "10.0.0.1", Port: 9700}
	b := HostAddr{Host: "10.0.0.2", Port: 9700}

	if !d.Add(a, false) {
		t.Fatal("expected Add to report a change for a new voter")
	}
	if d.Add(a, false) {
		t.Fatal("expected re-Add with the same learner flag to be a no-op")
	}
	if !d.Add(b, true) {
		t.Fatal("expected Add to report a change for a new learner")
	}

	if got := d.Quorum(); got != 2 {
		t.Fatalf("quorum with 1 voter + self = 2, got %d", got)
	}
	if len(d.Voters()) != 1 {
		t.Fatalf("expected exactly one voter, got %v", d.Voters())
	}
	if len(d.Followers()) != 2 {
		t.Fatalf("Followers must return every peer, voters and learners alike, got %v", d.Followers())
	}
	if !d.IsLearner(b) {
		t.Fatal("expected b to be a learner")
	}

	if !d.Remove(a) {
		t.Fatal("expected Remove to report a change for a known peer")
	}
	if d.Remove(a) {
		t.Fatal("expected Remove of an already-absent peer to be a no-op")
	}
	if d.Known(a) {
		t.Fatal("expected a to no longer be known after Remove")
	}
}

func TestPeerDirectoryPromoteLearner(t *testing.T) {
	d := NewPeerDirectory()
	a := HostAddr{Host: "10.0.0.1", Port: 9700}

	d.Add(a, true)
	if d.Quorum() != 1 {
		t.Fatalf("a learner-only directory has 0 voters, quorum(0+1)=1, got %d", d.Quorum())
	}

	if !d.Add(a, false) {
		t.Fatal("expected promoting an existing learner to report a change")
	}
	if d.IsLearner(a) {
		t.Fatal("expected a to be a voter after promotion")
	}
	if d.Quorum() != 2 {
		t.Fatalf("quorum should recompute after promotion, got %d", d.Quorum())
	}
}

func TestQuorumOf(t *testing.T) {
	cases := map[int]int{1: 1, 2: 2, 3: 2, 4: 3, 5: 3}
	for voters, want := range cases {
		if got := quorumOf(voters); got != want {
			t.Errorf("quorumOf(%d) = %d, want %d", voters, got, want)
		}
	}
}

func TestPeerDirectoryMutate(t *testing.T) {
	d := NewPeerDirectory()
	a := HostAddr{Host: "10.0.0.1", Port: 9700}
	d.Add(a, false)

	if !d.Mutate(a, func(r *peerRecord) { r.MatchIndex = 42 }) {
		t.Fatal("expected Mutate to find the existing peer")
	}
	rec, ok := d.Get(a)
	if !ok || rec.MatchIndex != 42 {
		t.Fatalf("expected MatchIndex=42 after Mutate, got %+v ok=%v", rec, ok)
	}

	if d.Mutate(HostAddr{Host: "nope"}, func(*peerRecord) {}) {
		t.Fatal("expected Mutate on an unknown peer to report no match")
	}
}
