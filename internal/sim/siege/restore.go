package siege

// RestoreState is the persisted view of an instance.
type RestoreState struct {
	ID              string
	UnitID          string
	Phase           Phase
	Dominance       float64
	Attacker        string
	Defender        string
	Participants    []string
	AttackerTickets int
	DefenderTickets int
	LockExpiresTick uint64
	LockedWinner    string
	HoldTicks       int
}

// Restore rebuilds an instance from a snapshot.
func Restore(st RestoreState, cfg Config) *Instance {
	return &Instance{
		ID:              st.ID,
		UnitID:          st.UnitID,
		Phase:           st.Phase,
		Dominance:       st.Dominance,
		Attacker:        st.Attacker,
		Defender:        st.Defender,
		Participants:    append([]string(nil), st.Participants...),
		AttackerTickets: st.AttackerTickets,
		DefenderTickets: st.DefenderTickets,
		LockExpiresTick: st.LockExpiresTick,
		LockedWinner:    st.LockedWinner,
		cfg:             cfg,
		holdTicks:       st.HoldTicks,
	}
}

// HoldTicks exposes the debounce counter for snapshot export.
func (si *Instance) HoldTicks() int { return si.holdTicks }
