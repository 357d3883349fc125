// Package session implements the session registry: the lifecycle operations
// that take a session from creation through start to a terminal state, and
// the anonymizing player-number assignment performed at start.
package session

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/classparty/classparty/internal/errs"
	"github.com/classparty/classparty/internal/game"
	"github.com/classparty/classparty/internal/models"
	"github.com/classparty/classparty/internal/rules"
	"github.com/classparty/classparty/internal/store"
)

// MinPlayers is the smallest session that can start.
const MinPlayers = 2

// Registry creates, fills and starts sessions against the realtime store,
// and hands started sessions to the game runtime.
type Registry struct {
	st      store.Store
	runtime *game.Runtime
	log     *logrus.Logger
	mirror  game.EventMirror

	// rng draws the number permutation and the role deck. Guarded because
	// registry calls arrive from many connections.
	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewRegistry builds a registry. Mirror may be nil.
func NewRegistry(st store.Store, runtime *game.Runtime, log *logrus.Logger) *Registry {
	if log == nil {
		log = logrus.New()
	}
	return &Registry{
		st:      st,
		runtime: runtime,
		log:     log,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetMirror wires the event mirror for registry-authored events.
func (r *Registry) SetMirror(m game.EventMirror) { r.mirror = m }

// CreateSession opens a Waiting session for a class. Settings are checked
// advisorily here; the blocking check happens at start.
func (r *Registry) CreateSession(ctx context.Context, classID, creatorID uuid.UUID, gt models.GameType, maxPlayers int, settings models.Settings) (*models.Session, error) {
	if maxPlayers < MinPlayers {
		return nil, errs.Validationf("max players %d is below the minimum of %d", maxPlayers, MinPlayers)
	}
	if settings == nil {
		settings = models.DefaultSettings(gt)
	}
	if settings.Game() != gt {
		return nil, errs.Validationf("settings are for %s, session is %s", settings.Game(), gt)
	}
	sess := &models.Session{
		ID:         uuid.New(),
		ClassID:    classID,
		CreatorID:  creatorID,
		GameType:   gt,
		MaxPlayers: maxPlayers,
		Status:     models.StatusWaiting,
		Settings:   settings,
		CreatedAt:  time.Now(),
	}
	if err := r.st.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	r.log.WithFields(logrus.Fields{
		"session": sess.ID,
		"game":    gt,
		"class":   classID,
	}).Info("session created")
	return sess, nil
}

// JoinSession adds a player to a Waiting session. The player gets no number
// yet; numbers are drawn at start.
func (r *Registry) JoinSession(ctx context.Context, sessionID, userID uuid.UUID, displayName string) (*models.Player, error) {
	sess, err := r.st.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.StatusWaiting {
		return nil, errs.InvalidStatef("session %s is %s, joining requires waiting", sessionID, sess.Status)
	}
	players, err := r.st.ListPlayers(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for _, p := range players {
		if p.UserID == userID {
			return nil, errs.InvalidStatef("user %s already joined session %s", userID, sessionID)
		}
	}
	if len(players) >= sess.MaxPlayers {
		return nil, errs.Validationf("session %s is full (%d players)", sessionID, sess.MaxPlayers)
	}
	player := models.NewPlayer(sessionID, userID, displayName)
	if err := r.st.PutPlayer(ctx, player); err != nil {
		return nil, err
	}
	return player, nil
}

// LeaveSession removes a waiting player outright. Leaving an active session
// is a forfeit: the record and number stay, participation ends.
func (r *Registry) LeaveSession(ctx context.Context, sessionID, userID uuid.UUID) error {
	sess, err := r.st.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	switch sess.Status {
	case models.StatusWaiting:
		return r.st.RemovePlayer(ctx, sessionID, userID)
	case models.StatusActive:
		c, ok := r.runtime.Get(sessionID)
		if !ok {
			return errs.InvalidStatef("session %s has no running coordinator", sessionID)
		}
		return c.Forfeit(ctx, userID)
	default:
		// Terminal sessions treat leave as a no-op.
		return nil
	}
}

// UpdateSettings replaces a waiting session's settings. Validation here is
// advisory: invalid settings are reported but stored, and will block start.
func (r *Registry) UpdateSettings(ctx context.Context, sessionID, requesterID uuid.UUID, settings models.Settings) error {
	sess, err := r.st.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.CreatorID != requesterID {
		return errs.Forbiddenf("only the creator may edit settings")
	}
	if sess.Status != models.StatusWaiting {
		return errs.InvalidStatef("settings are frozen once the session is %s", sess.Status)
	}
	waiting := models.StatusWaiting
	if _, err := r.st.UpdateSession(ctx, sessionID, store.SessionPatch{
		Settings:     settings,
		ExpectStatus: &waiting,
	}); err != nil {
		return err
	}
	players, err := r.st.ListPlayers(ctx, sessionID)
	if err != nil {
		return err
	}
	if verr := rules.Validate(sess.GameType, len(players), settings); verr != nil {
		r.log.WithField("session", sessionID).Warnf("settings saved but not startable: %v", verr)
	}
	return nil
}

// StartSession assigns the number permutation (and Mafia roles), flips the
// session Active with a conditional write, and launches the coordinator.
// The conditional write makes a racing second start fail with InvalidState.
func (r *Registry) StartSession(ctx context.Context, sessionID, requesterID uuid.UUID) (*models.Session, error) {
	sess, err := r.st.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.CreatorID != requesterID {
		return nil, errs.Forbiddenf("only the creator may start the session")
	}
	if sess.Status != models.StatusWaiting {
		return nil, errs.InvalidStatef("session %s is %s, start requires waiting", sessionID, sess.Status)
	}
	players, err := r.st.ListPlayers(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(players) < MinPlayers {
		return nil, errs.Validationf("not enough players: %d of at least %d", len(players), MinPlayers)
	}
	if err := rules.Validate(sess.GameType, len(players), sess.Settings); err != nil {
		return nil, err
	}

	// Win the Waiting->Active flip before touching any player record. A
	// racing duplicate start loses this conditional write and returns
	// without ever writing numbers or roles, so the winner's assignment is
	// never overwritten.
	active := models.StatusActive
	waiting := models.StatusWaiting
	updated, err := r.st.UpdateSession(ctx, sessionID, store.SessionPatch{
		Status:       &active,
		ExpectStatus: &waiting,
	})
	if err != nil {
		return nil, err
	}

	// Re-list after the flip: joins require Waiting, so this roster is the
	// frozen one the assignment and the coordinator must agree on.
	players, err = r.st.ListPlayers(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	r.assignNumbers(players)
	if sess.GameType == models.GameMafia {
		r.assignRoles(players, sess.Settings.(models.MafiaSettings))
	}
	for _, p := range players {
		if err := r.st.PutPlayer(ctx, p); err != nil {
			return nil, err
		}
	}
	if _, err := r.runtime.Launch(ctx, updated, players); err != nil {
		return nil, err
	}
	r.log.WithFields(logrus.Fields{
		"session": sessionID,
		"players": len(players),
	}).Info("session started")
	return updated, nil
}

// CancelSession moves a waiting or active session to Cancelled and appends
// the closing event. Clients treat Cancelled as terminal.
func (r *Registry) CancelSession(ctx context.Context, sessionID, requesterID uuid.UUID) error {
	sess, err := r.st.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.CreatorID != requesterID {
		return errs.Forbiddenf("only the creator may cancel the session")
	}
	if !sess.Status.CanTransition(models.StatusCancelled) {
		return errs.InvalidStatef("session %s is %s and cannot be cancelled", sessionID, sess.Status)
	}

	expect := sess.Status
	cancelled := models.StatusCancelled
	if _, err := r.st.UpdateSession(ctx, sessionID, store.SessionPatch{
		Status:       &cancelled,
		ExpectStatus: &expect,
	}); err != nil {
		return err
	}
	// The coordinator must halt before anyone else writes to the log.
	r.runtime.Stop(sessionID)

	ev := models.Event{
		SessionID: sessionID,
		Author:    models.SystemAuthor,
		Type:      models.EventSessionCancelled,
		Payload:   models.CancelledPayload{Reason: "host"},
	}
	if err := r.st.AppendEvent(ctx, &ev); err != nil {
		return err
	}
	if r.mirror != nil {
		if err := r.mirror.Publish(ctx, ev); err != nil {
			r.log.Warnf("mirror publish cancel event: %v", err)
		}
	}
	r.log.WithField("session", sessionID).Info("session cancelled")
	return nil
}

// assignNumbers draws a uniformly random permutation of 1..N. Numbers are
// unique and stay fixed for the rest of the session; later messaging
// addresses players only by number to preserve anonymity.
func (r *Registry) assignNumbers(players []*models.Player) {
	r.rngMu.Lock()
	perm := r.rng.Perm(len(players))
	r.rngMu.Unlock()
	for i, p := range players {
		p.Number = perm[i] + 1
	}
}

// assignRoles deals the Mafia role deck without replacement.
func (r *Registry) assignRoles(players []*models.Player, s models.MafiaSettings) {
	deck := make([]models.Role, 0, len(players))
	for i := 0; i < s.MafiaCount; i++ {
		deck = append(deck, models.RoleMafia)
	}
	for i := 0; i < s.DoctorCount; i++ {
		deck = append(deck, models.RoleDoctor)
	}
	for i := 0; i < s.DetectiveCount; i++ {
		deck = append(deck, models.RoleDetective)
	}
	for len(deck) < len(players) {
		deck = append(deck, models.RoleCivilian)
	}
	r.rngMu.Lock()
	r.rng.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })
	r.rngMu.Unlock()
	for i, p := range players {
		p.Role = deck[i]
	}
}
