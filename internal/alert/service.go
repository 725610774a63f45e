package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/google/uuid"
	"github.com/lostpaws/lostpaws/internal/geo"
	"github.com/lostpaws/lostpaws/internal/model"
	"github.com/lostpaws/lostpaws/internal/policy"
	"github.com/lostpaws/lostpaws/internal/proximity"
	"github.com/lostpaws/lostpaws/internal/push"
	"github.com/lostpaws/lostpaws/internal/store"
	"github.com/lostpaws/lostpaws/internal/websocket"
)

const (
	eventBufferSize = 256
	checkCooldown   = 60 * time.Second
	pushSendTimeout = 30 * time.Second
)

// EventKind discriminates queue events.
type EventKind int

const (
	// LocationChanged means one device reported a new position.
	LocationChanged EventKind = iota
	// PetListChanged means a pet was reported or resolved; every located
	// device gets re-checked.
	PetListChanged
	// TestRequested asks for a sample notification through the full
	// delivery path, bypassing dedup and cooldown.
	TestRequested
)

// Event is one unit of work for the service's consumer goroutine.
type Event struct {
	Kind     EventKind
	DeviceID string
}

// Service runs proximity checks and delivers nearby-pet alerts. All store
// writes for a device happen on the single consumer goroutine, so checks for
// one device never race each other.
type Service struct {
	devices *store.DeviceStore
	pets    *store.PetStore
	notifs  *store.NotificationStore
	dedup   *store.DedupLedger
	tokens  *store.PushTokenStore
	gateway *push.GatewayClient
	web     *push.WebPushSender
	hub     *websocket.Hub
	logger  *slog.Logger

	events chan Event
	now    func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewService(
	devices *store.DeviceStore,
	pets *store.PetStore,
	notifs *store.NotificationStore,
	dedup *store.DedupLedger,
	tokens *store.PushTokenStore,
	gateway *push.GatewayClient,
	web *push.WebPushSender,
	hub *websocket.Hub,
	logger *slog.Logger,
) *Service {
	return &Service{
		devices:  devices,
		pets:     pets,
		notifs:   notifs,
		dedup:    dedup,
		tokens:   tokens,
		gateway:  gateway,
		web:      web,
		hub:      hub,
		logger:   logger.With("component", "alert"),
		events:   make(chan Event, eventBufferSize),
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Start launches the consumer goroutine.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-s.events:
				s.handle(ctx, ev)
			}
		}
	}()
}

// Stop cancels the consumer and waits for it to drain.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Enqueue adds an event. When the buffer is full the event is dropped; a
// later location report or pet change re-triggers the check anyway.
func (s *Service) Enqueue(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("event queue full, dropping", "kind", ev.Kind, "device", ev.DeviceID)
	}
}

func (s *Service) handle(ctx context.Context, ev Event) {
	switch ev.Kind {
	case LocationChanged:
		if !s.allow(ev.DeviceID) {
			return
		}
		s.checkDevice(ctx, ev.DeviceID)
	case PetListChanged:
		devices, err := s.devices.ListWithLocation()
		if err != nil {
			s.logger.Error("list devices", "error", err)
			return
		}
		for _, d := range devices {
			if !s.allow(d.DeviceID) {
				continue
			}
			s.checkDevice(ctx, d.DeviceID)
		}
	case TestRequested:
		s.sendTest(ctx, ev.DeviceID)
	}
}

// allow enforces the per-device 60s cooldown between check cycles.
func (s *Service) allow(deviceID string) bool {
	s.mu.Lock()
	lim, ok := s.limiters[deviceID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(checkCooldown), 1)
		s.limiters[deviceID] = lim
	}
	s.mu.Unlock()
	return lim.Allow()
}

// checkDevice runs one full check cycle for a device.
func (s *Service) checkDevice(ctx context.Context, deviceID string) {
	now := s.now().UTC()

	if err := s.dedup.RolloverIfStale(deviceID, now); err != nil {
		s.logger.Error("dedup rollover", "device", deviceID, "error", err)
	}

	profile, err := s.devices.Get(deviceID)
	if err != nil {
		s.logger.Error("load profile", "device", deviceID, "error", err)
		return
	}
	if profile == nil || !profile.HasLocation() {
		return
	}

	pets, err := s.pets.ListActive()
	if err != nil {
		s.logger.Error("list pets", "error", err)
		return
	}
	if len(pets) == 0 {
		return
	}

	notified, err := s.dedup.NotifiedSet(deviceID)
	if err != nil {
		s.logger.Error("load dedup set", "device", deviceID, "error", err)
		return
	}

	hasPush, err := s.tokens.HasToken(deviceID)
	if err != nil {
		s.logger.Error("check push permission", "device", deviceID, "error", err)
		return
	}

	candidates := proximity.Match(*profile.LastLatitude, *profile.LastLongitude, pets, profile.RadiusKm)
	for _, cand := range candidates {
		pushed, seen := notified[cand.Pet.ID]
		if seen && pushed {
			continue
		}

		decision := policy.Decide(model.NotifTypeNearbyPet, profile, hasPush, now)

		if seen {
			// In-app record exists from an earlier cycle but the push was
			// held back by quiet hours. Deliver it once policy allows.
			if decision.SendPush {
				s.deliverPush(ctx, deviceID, profile, nearbyNotification(deviceID, cand, now))
				if err := s.dedup.MarkNotified(deviceID, cand.Pet.ID, true); err != nil {
					s.logger.Error("mark notified", "device", deviceID, "pet", cand.Pet.ID, "error", err)
				}
			}
			continue
		}

		if !decision.RecordInApp {
			continue
		}

		n := nearbyNotification(deviceID, cand, now)
		if err := s.notifs.Append(n); err != nil {
			s.logger.Error("append notification", "device", deviceID, "pet", cand.Pet.ID, "error", err)
			continue
		}
		s.hub.Send(deviceID, websocket.NotificationMessage(n))

		if decision.SendPush {
			s.deliverPush(ctx, deviceID, profile, n)
		}

		if err := s.dedup.MarkNotified(deviceID, cand.Pet.ID, decision.SendPush); err != nil {
			s.logger.Error("mark notified", "device", deviceID, "pet", cand.Pet.ID, "error", err)
		}
	}
}

func nearbyNotification(deviceID string, cand proximity.Candidate, now time.Time) *model.Notification {
	pet := cand.Pet
	return &model.Notification{
		ID:       uuid.NewString(),
		DeviceID: deviceID,
		Type:     model.NotifTypeNearbyPet,
		Title:    "Lost pet nearby",
		Body:     fmt.Sprintf("%s (%s) reported lost %s away", pet.Name, pet.Species, geo.FormatDistance(cand.DistanceKm)),
		Data: map[string]any{
			"pet_id":       pet.ID,
			"distance_km":  cand.DistanceKm,
			"reward_cents": pet.RewardCents,
			"urgency":      pet.Urgency,
		},
		Priority:   model.PriorityHigh,
		Category:   model.NotifTypeNearbyPet,
		Actionable: true,
		Actions:    []string{"view_pet", "navigate"},
		CreatedAt:  now,
	}
}

// sendTest runs the delivery path with a sample notification. Policy still
// applies, dedup and cooldown do not.
func (s *Service) sendTest(ctx context.Context, deviceID string) {
	now := s.now().UTC()

	profile, err := s.devices.Get(deviceID)
	if err != nil {
		s.logger.Error("load profile", "device", deviceID, "error", err)
		return
	}
	if profile == nil {
		return
	}

	hasPush, err := s.tokens.HasToken(deviceID)
	if err != nil {
		s.logger.Error("check push permission", "device", deviceID, "error", err)
		return
	}

	decision := policy.Decide(model.NotifTypeNearbyPet, profile, hasPush, now)
	if !decision.RecordInApp {
		return
	}

	n := &model.Notification{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		Type:      model.NotifTypeNearbyPet,
		Title:     "Test notification",
		Body:      "Notifications are working. You'll be alerted when a lost pet is reported near you.",
		Data:      map[string]any{"test": true},
		Priority:  model.PriorityNormal,
		Category:  model.NotifTypeNearbyPet,
		CreatedAt: now,
	}
	if err := s.notifs.Append(n); err != nil {
		s.logger.Error("append test notification", "device", deviceID, "error", err)
		return
	}
	s.hub.Send(deviceID, websocket.NotificationMessage(n))

	if decision.SendPush {
		s.deliverPush(ctx, deviceID, profile, n)
	}
}

// deliverPush fans one notification out to all of the device's tokens. Dead
// tokens surfaced by either channel are removed; delivery failures degrade to
// the already-written in-app record.
func (s *Service) deliverPush(ctx context.Context, deviceID string, profile *model.DeviceProfile, n *model.Notification) {
	tokens, err := s.tokens.ListByDevice(deviceID)
	if err != nil {
		s.logger.Error("list tokens", "device", deviceID, "error", err)
		return
	}

	sound := ""
	if profile.SoundEnabled {
		sound = "default"
	}

	var mobile []push.Message
	for _, tok := range tokens {
		switch tok.DeviceType {
		case model.DeviceTypeWeb:
			err := s.web.Send(tok.Token, push.Payload{
				Title:    n.Title,
				Body:     n.Body,
				Data:     n.Data,
				Tag:      n.Type,
				Sound:    sound,
				Priority: n.Priority,
			})
			if errors.Is(err, push.ErrExpired) {
				s.logger.Info("removing expired web token", "device", deviceID)
				s.tokens.DeleteByToken(tok.Token)
			} else if err != nil {
				s.logger.Error("web push", "device", deviceID, "error", err)
			}
		default:
			mobile = append(mobile, push.Message{
				To:       tok.Token,
				Title:    n.Title,
				Body:     n.Body,
				Data:     n.Data,
				Sound:    sound,
				Priority: gatewayPriority(n.Priority),
			})
		}
	}

	if len(mobile) == 0 {
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, pushSendTimeout)
	defer cancel()

	tickets, err := s.gateway.SendBatch(sendCtx, mobile)
	if err != nil {
		s.logger.Error("gateway send", "device", deviceID, "error", err)
		return
	}
	for _, dead := range push.DeadTokens(mobile, tickets) {
		s.logger.Info("removing dead token", "device", deviceID)
		s.tokens.DeleteByToken(dead)
	}
}

// gatewayPriority maps notification priorities onto the gateway's two levels.
func gatewayPriority(p string) string {
	switch p {
	case model.PriorityHigh, model.PriorityCritical:
		return "high"
	default:
		return "normal"
	}
}
