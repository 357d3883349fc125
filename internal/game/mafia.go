package game

import (
	"fmt"
	"time"

	"github.com/classparty/classparty/internal/errs"
	"github.com/classparty/classparty/internal/models"
)

// Mafia phases.
const (
	PhaseNight   = "night"
	PhaseDay     = "day"
	PhaseVoting  = "voting"
	PhaseResults = "results"
	PhaseEnded   = "ended"
)

// Phase deadlines. Day additionally ends early on host advance.
const (
	nightTimeout = 60 * time.Second
	dayTimeout   = 120 * time.Second
	voteTimeout  = 60 * time.Second
)

// Elimination causes recorded on player_eliminated events.
const (
	causeNightKill = "night_kill"
	causeDayVote   = "day_vote"
	causeForfeit   = "forfeit"
)

// mafia cycles Night -> Day -> Voting -> Results until one side wins.
//
// Night actions are collected in the coordinator's memory and never appended
// to the log; only their resolution is. Logging them would leak roles to
// every subscriber. Day votes are public events.
type mafia struct {
	c     *Coordinator
	round int
	stage string

	nightVotes map[int]int // special-role voter number -> target number
	dayVotes   map[int]int // voter number -> target number
}

func newMafia(c *Coordinator) *mafia {
	return &mafia{
		c:          c,
		nightVotes: make(map[int]int),
		dayVotes:   make(map[int]int),
	}
}

func (m *mafia) phase() string { return m.stage }

func (m *mafia) begin() error {
	// Roles were drawn at start; each player learns only their own.
	for n, p := range m.c.players {
		m.c.tell(n, PrivateNote{Type: "role", Role: p.Role})
	}
	m.round = 1
	return m.enterNight("lobby")
}

func (m *mafia) enterNight(from string) error {
	m.stage = PhaseNight
	m.nightVotes = make(map[int]int)
	if err := m.c.changePhase(from, PhaseNight, m.round); err != nil {
		return err
	}
	m.c.schedule(nightTimeout, PhaseNight)
	return nil
}

func (m *mafia) handle(p *models.Player, act Action) error {
	switch act.Type {
	case ActionNight:
		return m.handleNight(p, act.Target)
	case ActionVote:
		return m.handleVote(p, act.Target)
	case ActionAdvance:
		if p.UserID != m.c.session.CreatorID {
			return errs.Forbiddenf("only the session creator may advance the phase")
		}
		if m.stage != PhaseDay {
			return errs.InvalidStatef("cannot advance out of %s", m.stage)
		}
		return m.enterVoting()
	default:
		return errs.InvalidStatef("action %s has no meaning in mafia", act.Type)
	}
}

func (m *mafia) handleNight(p *models.Player, target int) error {
	if m.stage != PhaseNight {
		return errs.InvalidStatef("night actions are closed during %s", m.stage)
	}
	if p.Role == models.RoleCivilian {
		return errs.Forbiddenf("player %d has no night action", p.Number)
	}
	if !p.IsAlive {
		return errs.InvalidStatef("eliminated players cannot act")
	}
	if _, dup := m.nightVotes[p.Number]; dup {
		return errs.InvalidStatef("player %d already acted tonight", p.Number)
	}
	t, ok := m.c.players[target]
	if !ok || !t.Active || !t.IsAlive {
		return errs.Validationf("target %d is not an alive player", target)
	}
	switch p.Role {
	case models.RoleMafia:
		if t.Role == models.RoleMafia {
			return errs.Validationf("mafia cannot target their own")
		}
	case models.RoleDetective:
		if t.Number == p.Number {
			return errs.Validationf("the detective cannot inspect themselves")
		}
	case models.RoleDoctor:
		// Any alive player, self included.
	}
	m.nightVotes[p.Number] = target
	if m.nightComplete() {
		return m.resolveNight()
	}
	return nil
}

// nightComplete reports whether every alive special role has acted.
func (m *mafia) nightComplete() bool {
	for _, p := range m.c.players {
		if p.Active && p.IsAlive && p.Role != models.RoleCivilian {
			if _, ok := m.nightVotes[p.Number]; !ok {
				return false
			}
		}
	}
	return true
}

func (m *mafia) resolveNight() error {
	m.c.stopTimer()

	kill := m.mafiaKillTarget()
	var save int
	for voter, target := range m.nightVotes {
		p := m.c.players[voter]
		switch p.Role {
		case models.RoleDoctor:
			save = target
		case models.RoleDetective:
			inspected := m.c.players[target]
			m.c.tell(voter, PrivateNote{
				Type:    "inspection",
				Target:  target,
				IsMafia: inspected.Role == models.RoleMafia,
			})
		}
	}

	switch {
	case kill == 0:
		if err := m.c.append(models.SystemAuthor, models.SystemPayload{
			Message: "the night passed quietly",
		}); err != nil {
			return err
		}
	case kill == save:
		if err := m.c.append(models.SystemAuthor, models.SystemPayload{
			Message: "the doctor foiled an attack",
		}); err != nil {
			return err
		}
	default:
		if err := m.eliminate(kill, causeNightKill); err != nil {
			return err
		}
	}

	if ended, err := m.checkEnd(PhaseNight); ended || err != nil {
		return err
	}
	m.stage = PhaseDay
	if err := m.c.changePhase(PhaseNight, PhaseDay, m.round); err != nil {
		return err
	}
	m.c.schedule(dayTimeout, PhaseDay)
	return nil
}

// mafiaKillTarget tallies the mafia's night votes. The plurality target
// wins; a tie goes to the lowest player number so resolution stays
// deterministic. Zero means no mafia acted before the deadline.
func (m *mafia) mafiaKillTarget() int {
	counts := make(map[int]int)
	for voter, target := range m.nightVotes {
		if m.c.players[voter].Role == models.RoleMafia {
			counts[target]++
		}
	}
	best, bestCount := 0, 0
	for target, n := range counts {
		if n > bestCount || (n == bestCount && target < best) {
			best, bestCount = target, n
		}
	}
	return best
}

func (m *mafia) handleVote(p *models.Player, target int) error {
	if m.stage != PhaseVoting {
		return errs.InvalidStatef("votes are not open during %s", m.stage)
	}
	if !p.IsAlive {
		return errs.InvalidStatef("eliminated players cannot vote")
	}
	if _, dup := m.dayVotes[p.Number]; dup {
		return errs.InvalidStatef("player %d already voted", p.Number)
	}
	t, ok := m.c.players[target]
	if !ok || !t.Active || !t.IsAlive {
		return errs.Validationf("target %d is not an alive player", target)
	}
	if target == p.Number {
		return errs.Validationf("players cannot vote for themselves")
	}
	m.dayVotes[p.Number] = target
	if err := m.c.append(p.Number, models.VotePayload{TargetNumber: target}); err != nil {
		return err
	}
	if len(m.dayVotes) == len(m.c.alive()) {
		return m.resolveVoting()
	}
	return nil
}

func (m *mafia) enterVoting() error {
	m.stage = PhaseVoting
	m.dayVotes = make(map[int]int)
	if err := m.c.changePhase(PhaseDay, PhaseVoting, m.round); err != nil {
		return err
	}
	m.c.schedule(voteTimeout, PhaseVoting)
	return nil
}

func (m *mafia) resolveVoting() error {
	m.c.stopTimer()
	m.stage = PhaseResults
	if err := m.c.changePhase(PhaseVoting, PhaseResults, m.round); err != nil {
		return err
	}

	counts := make(map[int]int)
	for _, target := range m.dayVotes {
		counts[target]++
	}
	best, bestCount := 0, 0
	for target, n := range counts {
		if n > bestCount {
			best, bestCount = target, n
		}
	}

	// Elimination needs a strict majority of the votes cast. A plurality, a
	// tie, or an empty ballot eliminates nobody.
	if bestCount*2 > len(m.dayVotes) {
		if err := m.eliminate(best, causeDayVote); err != nil {
			return err
		}
	} else if err := m.c.append(models.SystemAuthor, models.SystemPayload{
		Message: "the vote was inconclusive, nobody was eliminated",
	}); err != nil {
		return err
	}

	if ended, err := m.checkEnd(PhaseResults); ended || err != nil {
		return err
	}
	m.round++
	return m.enterNight(PhaseResults)
}

func (m *mafia) eliminate(number int, cause string) error {
	p := m.c.players[number]
	if !p.IsAlive {
		// A forfeit can leave a stale night target behind; eliminating a
		// dead player must not append a second event.
		return nil
	}
	p.IsAlive = false
	m.c.putPlayer(p)
	return m.c.append(models.SystemAuthor, models.EliminatedPayload{
		Number: number,
		Cause:  cause,
		Round:  m.round,
	})
}

// checkEnd applies the win conditions: civilians win once no mafia remain
// alive; mafia win once they are at least as many as everyone else alive.
func (m *mafia) checkEnd(from string) (bool, error) {
	aliveMafia, aliveOthers := 0, 0
	for _, p := range m.c.players {
		if !p.Active || !p.IsAlive {
			continue
		}
		if p.Role == models.RoleMafia {
			aliveMafia++
		} else {
			aliveOthers++
		}
	}

	var winner string
	switch {
	case aliveMafia == 0:
		winner = "civilians"
	case aliveMafia >= aliveOthers:
		winner = "mafia"
	default:
		return false, nil
	}

	m.stage = PhaseEnded
	roles := make(map[int]models.Role, len(m.c.players))
	for n, p := range m.c.players {
		roles[n] = p.Role
	}
	if err := m.c.changePhase(from, PhaseEnded, m.round); err != nil {
		return true, err
	}
	if err := m.c.append(models.SystemAuthor, models.GameEndedPayload{
		Winner: winner,
		Roles:  roles,
	}); err != nil {
		return true, err
	}
	return true, m.c.finish()
}

func (m *mafia) timeout(stage string) error {
	if stage != m.stage {
		return nil
	}
	switch stage {
	case PhaseNight:
		return m.resolveNight()
	case PhaseDay:
		return m.enterVoting()
	case PhaseVoting:
		return m.resolveVoting()
	default:
		return fmt.Errorf("unexpected timer in %s", stage)
	}
}

func (m *mafia) forfeit(p *models.Player) error {
	p.Active = false
	wasAlive := p.IsAlive
	p.IsAlive = false
	m.c.putPlayer(p)
	if err := m.c.append(models.SystemAuthor, models.PlayerLeftPayload{Number: p.Number}); err != nil {
		return err
	}
	delete(m.nightVotes, p.Number)
	delete(m.dayVotes, p.Number)
	if wasAlive {
		if err := m.c.append(models.SystemAuthor, models.EliminatedPayload{
			Number: p.Number,
			Cause:  causeForfeit,
			Round:  m.round,
		}); err != nil {
			return err
		}
	}
	if ended, err := m.checkEnd(m.stage); ended || err != nil {
		return err
	}
	// The departure may have been the last outstanding submission.
	switch m.stage {
	case PhaseNight:
		if m.nightComplete() {
			return m.resolveNight()
		}
	case PhaseVoting:
		if len(m.dayVotes) >= len(m.c.alive()) {
			return m.resolveVoting()
		}
	}
	return nil
}
