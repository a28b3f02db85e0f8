// Package nodekind implements the proof-role algebra for the census. Every
// reachable position carries a small set of roles describing how it appears
// in the strong solution of the game: along the principal variation, as an
// opponent branch off it, inside a refutation of such a branch, or on the
// certificate side witnessing that non-best replies still lose.
package nodekind

import "strings"

// Mask is a set of proof roles. A position can be reached along several
// branches and so carry several roles at once.
type Mask uint8

const (
	// PV marks a principal-variation solution node.
	PV Mask = 1 << iota
	// AltLine marks an alternative solution node, reached when the second
	// player branches off the principal variation.
	AltLine
	// Refutation marks a proof-branch node refuting an alternative.
	Refutation
	// CertMain marks a certificate-side main-line node.
	CertMain
	// CertAlt marks a certificate-side alternative node.
	CertAlt

	numKinds = 5
)

// SolutionMask covers the roles that make a position a solution artifact.
// A position whose mask never intersects it is a proof certificate.
const SolutionMask = PV | AltLine | Refutation

// CertificateMask covers the certificate-side roles.
const CertificateMask = CertMain | CertAlt

// Child roles by parent role (indexed by bit position), for the child
// reached by the parent's best move and for every other child.
var (
	bestChild  = [numKinds]Mask{PV, Refutation, AltLine, CertAlt, CertMain}
	otherChild = [numKinds]Mask{AltLine, CertMain, AltLine, CertAlt, CertMain}
)

// Child returns the roles of a child position given the roles of its
// parent. mostPromising is true when the child is reached by the parent's
// best move. The result is the union of the per-role child roles.
func Child(parent Mask, mostPromising bool) Mask {
	table := &otherChild
	if mostPromising {
		table = &bestChild
	}
	var child Mask
	for i := 0; i < numKinds; i++ {
		if parent&(1<<i) != 0 {
			child |= table[i]
		}
	}
	return child
}

// IsSolution reports whether the mask marks a solution artifact.
func (m Mask) IsSolution() bool {
	return m&SolutionMask != 0
}

var kindNames = [numKinds]string{"P", "A'", "P'", "C", "A"}

func (m Mask) String() string {
	if m == 0 {
		return "∅"
	}
	var names []string
	for i := 0; i < numKinds; i++ {
		if m&(1<<i) != 0 {
			names = append(names, kindNames[i])
		}
	}
	return strings.Join(names, "|")
}
