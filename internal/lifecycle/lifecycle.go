/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package lifecycle holds the closed set of transaction states and the single
// table of legal transitions between them.
package lifecycle

import "fmt"

// Kind is the transaction type a state belongs to.
type Kind string

const (
	KindDeposit    Kind = "deposit"
	KindWithdrawal Kind = "withdrawal"
)

// State is a transaction state. Withdrawal and deposit states share the type
// but never the table.
type State string

const (
	StateRequested     State = "requested"
	StateApproved      State = "approved"
	StatePayoutPending State = "payout_pending"
	StatePaid          State = "paid"
	StatePayoutFailed  State = "payout_failed"
	StateRejected      State = "rejected"

	StatePending State = "pending"
	StateSettled State = "settled"
	StateFailed  State = "failed"
)

// Effect is the ledger side effect a transition carries.
type Effect int

const (
	EffectNone Effect = iota
	EffectSettleDeposit
	EffectReleasePaid
	EffectReleaseReturned
)

func (e Effect) String() string {
	switch e {
	case EffectSettleDeposit:
		return "settle_deposit"
	case EffectReleasePaid:
		return "release_paid"
	case EffectReleaseReturned:
		return "release_returned"
	default:
		return "none"
	}
}

// Transition is one row of the table.
type Transition struct {
	Kind           Kind
	From           State
	To             State
	Effect         Effect
	ReasonRequired bool
	// ProviderRef marks transitions that attach a payout provider reference.
	ProviderRef bool
}

var transitions = []Transition{
	{Kind: KindWithdrawal, From: StateRequested, To: StateApproved, ReasonRequired: true},
	{Kind: KindWithdrawal, From: StateRequested, To: StateRejected, Effect: EffectReleaseReturned, ReasonRequired: true},
	{Kind: KindWithdrawal, From: StateApproved, To: StatePayoutPending, ProviderRef: true},
	{Kind: KindWithdrawal, From: StatePayoutPending, To: StatePaid, Effect: EffectReleasePaid, ReasonRequired: true},
	{Kind: KindWithdrawal, From: StatePayoutPending, To: StatePayoutFailed, ReasonRequired: true},
	{Kind: KindWithdrawal, From: StatePayoutFailed, To: StatePayoutPending, ProviderRef: true},
	{Kind: KindWithdrawal, From: StatePayoutFailed, To: StateRejected, Effect: EffectReleaseReturned, ReasonRequired: true},

	{Kind: KindDeposit, From: StatePending, To: StateSettled, Effect: EffectSettleDeposit},
	{Kind: KindDeposit, From: StatePending, To: StateFailed},
}

var states = map[Kind][]State{
	KindWithdrawal: {StateRequested, StateApproved, StatePayoutPending, StatePaid, StatePayoutFailed, StateRejected},
	KindDeposit:    {StatePending, StateSettled, StateFailed},
}

type edge struct {
	kind     Kind
	from, to State
}

var index = func() map[edge]Transition {
	m := make(map[edge]Transition, len(transitions))
	for _, t := range transitions {
		m[edge{t.Kind, t.From, t.To}] = t
	}
	return m
}()

// Lookup returns the table row for kind/from/to. ok is false for any pair that
// is not in the table.
func Lookup(kind Kind, from, to State) (Transition, bool) {
	t, ok := index[edge{kind, from, to}]
	return t, ok
}

// Transitions returns a copy of the full table.
func Transitions() []Transition {
	out := make([]Transition, len(transitions))
	copy(out, transitions)
	return out
}

// States returns every state of kind.
func States(kind Kind) []State {
	out := make([]State, len(states[kind]))
	copy(out, states[kind])
	return out
}

// Initial returns the state a new transaction of kind starts in.
func Initial(kind Kind) State {
	if kind == KindDeposit {
		return StatePending
	}
	return StateRequested
}

// IsTerminal reports whether no transition leaves s within kind.
func IsTerminal(kind Kind, s State) bool {
	for _, t := range transitions {
		if t.Kind == kind && t.From == s {
			return false
		}
	}
	return Valid(kind, s)
}

// Valid reports whether s is a state of kind.
func Valid(kind Kind, s State) bool {
	for _, v := range states[kind] {
		if v == s {
			return true
		}
	}
	return false
}

// ParseKind validates a wire value.
func ParseKind(v string) (Kind, error) {
	switch Kind(v) {
	case KindDeposit, KindWithdrawal:
		return Kind(v), nil
	}
	return "", fmt.Errorf("unknown transaction type %q", v)
}

// ParseState validates a wire value against every known state.
func ParseState(v string) (State, error) {
	s := State(v)
	if Valid(KindWithdrawal, s) || Valid(KindDeposit, s) {
		return s, nil
	}
	return "", fmt.Errorf("unknown transaction state %q", v)
}
