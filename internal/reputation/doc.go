// Package reputation is the voting and reputation ledger of the forum.
//
// Every vote cast, switched or retracted and every answer accepted or
// un-accepted goes through an Engine. The engine reads the current
// vote/acceptance state inside a transaction, derives the next state with
// the pure transition functions in rules.go, and writes the state change
// together with the resulting reputation deltas before committing. A user's
// reputation therefore always equals Rules.Score of the Tally replayed from
// the current rows, which is what Engine.Recompute relies on.
package reputation
