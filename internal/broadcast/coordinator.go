package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lostpaws/lostpaws/internal/model"
	"github.com/lostpaws/lostpaws/internal/push"
	"github.com/lostpaws/lostpaws/internal/store"
	"github.com/lostpaws/lostpaws/internal/websocket"
)

const (
	// workerCount bounds concurrent gateway batches per broadcast.
	workerCount = 5
	// fallbackLimit caps the degraded all-devices population when the
	// spatial query fails.
	fallbackLimit = 500

	batchTimeout = 30 * time.Second
)

var (
	// ErrNotFound means the pet id does not exist. No side effects.
	ErrNotFound = errors.New("pet not found")
	// ErrNoLocation means the pet has no reported position to center on.
	ErrNoLocation = errors.New("pet has no location")
)

// Result summarizes one emergency fan-out. RecipientCount is attempted
// deliveries, not confirmed ones.
type Result struct {
	JobID          string `json:"job_id"`
	RecipientCount int    `json:"recipient_count"`
	Success        bool   `json:"success"`
}

// DeviceDirectory is the slice of the device store the coordinator reads.
type DeviceDirectory interface {
	ListWithinRadius(lat, lng, radiusKm float64) ([]string, error)
	ListFallback(limit int) ([]string, error)
	FilterEmergencyEnabled(ids []string) ([]string, error)
	FilterSoundEnabled(ids []string) ([]string, error)
}

// Coordinator runs owner-triggered emergency broadcasts: resolve every
// eligible device within a fixed 15 km radius of the pet and fan push
// messages out in gateway-sized batches.
type Coordinator struct {
	pets    *store.PetStore
	devices DeviceDirectory
	tokens  *store.PushTokenStore
	jobs    *store.BroadcastStore
	gateway *push.GatewayClient
	web     *push.WebPushSender
	hub     *websocket.Hub
	logger  *slog.Logger
}

func NewCoordinator(
	pets *store.PetStore,
	devices DeviceDirectory,
	tokens *store.PushTokenStore,
	jobs *store.BroadcastStore,
	gateway *push.GatewayClient,
	web *push.WebPushSender,
	hub *websocket.Hub,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		pets:    pets,
		devices: devices,
		tokens:  tokens,
		jobs:    jobs,
		gateway: gateway,
		web:     web,
		hub:     hub,
		logger:  logger.With("component", "broadcast"),
	}
}

// Broadcast runs one emergency fan-out for the pet. ctx bounds the whole
// job; each gateway batch additionally gets its own timeout.
func (c *Coordinator) Broadcast(ctx context.Context, petID string) (*Result, error) {
	pet, err := c.pets.GetByID(petID)
	if err != nil {
		return nil, fmt.Errorf("load pet: %w", err)
	}
	if pet == nil {
		return nil, ErrNotFound
	}
	if !pet.HasLocation() {
		return nil, ErrNoLocation
	}

	job, err := c.jobs.Create(petID, *pet.Latitude, *pet.Longitude, model.EmergencyRadiusKm, model.BroadcastTypeEmergency)
	if err != nil {
		return nil, fmt.Errorf("create broadcast job: %w", err)
	}
	c.setStatus(job.ID, model.BroadcastStatusResolving)

	deviceIDs, degraded, err := c.resolveRecipients(*pet.Latitude, *pet.Longitude)
	if err != nil {
		c.setStatus(job.ID, model.BroadcastStatusFailed)
		return nil, err
	}
	if degraded {
		c.logger.Warn("spatial query failed, using capped fallback population",
			"job", job.ID, "devices", len(deviceIDs), "degraded", true)
	}

	deviceIDs, err = c.devices.FilterEmergencyEnabled(deviceIDs)
	if err != nil {
		c.setStatus(job.ID, model.BroadcastStatusFailed)
		return nil, fmt.Errorf("filter recipients: %w", err)
	}

	tokens, err := c.tokens.ListByDevices(deviceIDs)
	if err != nil {
		c.setStatus(job.ID, model.BroadcastStatusFailed)
		return nil, fmt.Errorf("gather tokens: %w", err)
	}

	if len(tokens) == 0 {
		c.setStatus(job.ID, model.BroadcastStatusCompleted)
		c.logger.Info("broadcast found no recipients", "job", job.ID, "pet", petID)
		return &Result{JobID: job.ID, RecipientCount: 0, Success: true}, nil
	}

	c.setStatus(job.ID, model.BroadcastStatusDispatching)
	c.hub.Broadcast(websocket.Message{
		Type: "emergency",
		Extra: map[string]any{
			"pet_id":       pet.ID,
			"pet_name":     pet.Name,
			"urgency":      pet.Urgency,
			"broadcast_id": job.ID,
		},
	})

	attempted := c.dispatch(ctx, job.ID, pet, tokens, c.soundEnabledSet(job.ID, deviceIDs))

	if err := c.jobs.SetRecipients(job.ID, attempted); err != nil {
		c.logger.Error("record recipients", "job", job.ID, "error", err)
	}
	c.setStatus(job.ID, model.BroadcastStatusCompleted)

	c.logger.Info("broadcast completed",
		"job", job.ID, "pet", petID, "recipients", attempted, "degraded", degraded)
	return &Result{JobID: job.ID, RecipientCount: attempted, Success: true}, nil
}

// resolveRecipients runs the radius query, falling back once to a capped
// slice of all registered devices when it fails.
func (c *Coordinator) resolveRecipients(lat, lng float64) ([]string, bool, error) {
	ids, err := c.devices.ListWithinRadius(lat, lng, model.EmergencyRadiusKm)
	if err == nil {
		return ids, false, nil
	}
	c.logger.Error("radius query failed", "error", err)

	ids, err = c.devices.ListFallback(fallbackLimit)
	if err != nil {
		return nil, false, fmt.Errorf("fallback query: %w", err)
	}
	return ids, true, nil
}

// soundEnabledSet maps each recipient to its sound toggle. A lookup failure
// degrades to sound on for everyone.
func (c *Coordinator) soundEnabledSet(jobID string, deviceIDs []string) map[string]bool {
	soundOn := make(map[string]bool, len(deviceIDs))
	ids, err := c.devices.FilterSoundEnabled(deviceIDs)
	if err != nil {
		c.logger.Error("filter sound devices", "job", jobID, "error", err)
		ids = deviceIDs
	}
	for _, id := range ids {
		soundOn[id] = true
	}
	return soundOn
}

// dispatch fans the emergency out across all tokens with a bounded worker
// pool. A failed batch is logged and its siblings proceed. Returns the number
// of attempted deliveries.
func (c *Coordinator) dispatch(ctx context.Context, jobID string, pet *model.Pet, tokens []model.PushToken, soundOn map[string]bool) int {
	title := "🚨 URGENT: Lost Pet Emergency"
	body := fmt.Sprintf(
		"%s (%s) was just reported lost near you! Urgency: %s. Reward: $%.2f. Earn hero points by joining the search. Everyone within %.0f km is being alerted.",
		pet.Name, pet.Species, pet.Urgency, float64(pet.RewardCents)/100, model.EmergencyRadiusKm,
	)
	data := map[string]any{
		"pet_id":       pet.ID,
		"broadcast_id": jobID,
		"urgency":      pet.Urgency,
		"reward_cents": pet.RewardCents,
	}

	var mobile []push.Message
	var web []model.PushToken
	for _, tok := range tokens {
		if tok.DeviceType == model.DeviceTypeWeb {
			web = append(web, tok)
			continue
		}
		sound := ""
		if soundOn[tok.DeviceID] {
			sound = "default"
		}
		mobile = append(mobile, push.Message{
			To:       tok.Token,
			Title:    title,
			Body:     body,
			Data:     data,
			Sound:    sound,
			Priority: "high",
		})
	}

	batches := make(chan []push.Message)
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range batches {
				c.sendBatch(ctx, jobID, batch)
			}
		}()
	}

	for start := 0; start < len(mobile); start += push.MaxBatchSize {
		end := start + push.MaxBatchSize
		if end > len(mobile) {
			end = len(mobile)
		}
		batches <- mobile[start:end]
	}
	close(batches)
	wg.Wait()

	for _, tok := range web {
		sound := ""
		if soundOn[tok.DeviceID] {
			sound = "default"
		}
		err := c.web.Send(tok.Token, push.Payload{
			Title:    title,
			Body:     body,
			Data:     data,
			Tag:      model.NotifTypeEmergency,
			Sound:    sound,
			Priority: model.PriorityCritical,
		})
		if errors.Is(err, push.ErrExpired) {
			c.tokens.DeleteByToken(tok.Token)
		} else if err != nil {
			c.logger.Error("web emergency push", "job", jobID, "error", err)
		}
	}

	return len(mobile) + len(web)
}

func (c *Coordinator) sendBatch(ctx context.Context, jobID string, batch []push.Message) {
	sendCtx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()

	tickets, err := c.gateway.SendBatch(sendCtx, batch)
	if err != nil {
		c.logger.Error("batch failed", "job", jobID, "size", len(batch), "error", err)
		return
	}
	for _, dead := range push.DeadTokens(batch, tickets) {
		c.tokens.DeleteByToken(dead)
	}
}

func (c *Coordinator) setStatus(jobID, status string) {
	if err := c.jobs.UpdateStatus(jobID, status); err != nil {
		c.logger.Error("update job status", "job", jobID, "status", status, "error", err)
	}
}
