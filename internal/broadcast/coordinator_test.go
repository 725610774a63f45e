package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lostpaws/lostpaws/internal/database"
	"github.com/lostpaws/lostpaws/internal/model"
	"github.com/lostpaws/lostpaws/internal/push"
	"github.com/lostpaws/lostpaws/internal/store"
	"github.com/lostpaws/lostpaws/internal/websocket"
)

type testEnv struct {
	coord   *Coordinator
	pets    *store.PetStore
	devices *store.DeviceStore
	tokens  *store.PushTokenStore
	jobs    *store.BroadcastStore

	mu      sync.Mutex
	batches [][]push.Message

	// failNext makes the gateway 500 exactly one request.
	failNext atomic.Bool
}

func newTestEnv(t *testing.T, deadTokens map[string]bool) *testEnv {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		pets:    store.NewPetStore(db),
		devices: store.NewDeviceStore(db),
		tokens:  store.NewPushTokenStore(db),
		jobs:    store.NewBroadcastStore(db),
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if env.failNext.CompareAndSwap(true, false) {
			http.Error(w, "gateway unavailable", http.StatusInternalServerError)
			return
		}
		var batch []push.Message
		json.NewDecoder(r.Body).Decode(&batch)
		env.mu.Lock()
		env.batches = append(env.batches, batch)
		env.mu.Unlock()
		tickets := make([]push.Ticket, len(batch))
		for i, m := range batch {
			if deadTokens[m.To] {
				tickets[i] = push.Ticket{Status: "error", Details: &push.TicketDetails{Error: push.DeviceNotRegistered}}
			} else {
				tickets[i] = push.Ticket{Status: "ok"}
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"data": tickets})
	}))
	t.Cleanup(srv.Close)

	env.coord = NewCoordinator(
		env.pets,
		env.devices,
		env.tokens,
		env.jobs,
		push.NewGatewayClient(srv.URL),
		push.NewWebPushSender("", ""),
		websocket.NewHub(slog.Default()),
		slog.Default(),
	)
	return env
}

func (e *testEnv) addLostPet(t *testing.T, lat, lng float64) *model.Pet {
	t.Helper()
	pet, err := e.pets.Create("owner", "Rex", "dog", &lat, &lng, 10000, model.UrgencyCritical)
	if err != nil {
		t.Fatalf("create pet: %v", err)
	}
	return pet
}

func (e *testEnv) addDevice(t *testing.T, id string, lat, lng float64, tokenCount int) {
	t.Helper()
	if err := e.devices.EnsureExists(id); err != nil {
		t.Fatalf("ensure device: %v", err)
	}
	if err := e.devices.UpdateLocation(id, lat, lng, time.Now().UTC()); err != nil {
		t.Fatalf("update location: %v", err)
	}
	for i := 0; i < tokenCount; i++ {
		if _, err := e.tokens.Register(id, fmt.Sprintf("tok-%s-%d", id, i), model.DeviceTypeIOS); err != nil {
			t.Fatalf("register token: %v", err)
		}
	}
}

func (e *testEnv) batchSizes() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	sizes := make([]int, len(e.batches))
	for i, b := range e.batches {
		sizes[i] = len(b)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(sizes)))
	return sizes
}

func TestBroadcastMissingPet(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.coord.Broadcast(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	// Zero side effects: no job row was written
	count, _ := env.jobs.CountByPet("nope")
	if count != 0 {
		t.Errorf("jobs = %d, want 0", count)
	}
}

func TestBroadcastPetWithoutLocation(t *testing.T) {
	env := newTestEnv(t, nil)
	pet, err := env.pets.Create("owner", "Rex", "dog", nil, nil, 0, model.UrgencyNormal)
	if err != nil {
		t.Fatalf("create pet: %v", err)
	}

	_, err = env.coord.Broadcast(context.Background(), pet.ID)
	if !errors.Is(err, ErrNoLocation) {
		t.Fatalf("err = %v, want ErrNoLocation", err)
	}
	count, _ := env.jobs.CountByPet(pet.ID)
	if count != 0 {
		t.Errorf("jobs = %d, want 0", count)
	}
}

func TestBroadcastResolvesWithinFixedRadius(t *testing.T) {
	env := newTestEnv(t, nil)
	pet := env.addLostPet(t, 47.6062, -122.3321)

	env.addDevice(t, "near", 47.6100, -122.3300, 1)   // well inside 15km
	env.addDevice(t, "edge", 47.7000, -122.3321, 1)   // ~10km north, inside
	env.addDevice(t, "far", 48.0000, -123.0000, 1)    // ~65km, outside
	env.addDevice(t, "notoken", 47.6100, -122.3400, 0)

	res, err := env.coord.Broadcast(context.Background(), pet.ID)
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if !res.Success || res.RecipientCount != 2 {
		t.Errorf("result = %+v, want success with 2 recipients", res)
	}

	job, err := env.jobs.GetByID(res.JobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != model.BroadcastStatusCompleted {
		t.Errorf("status = %s, want completed", job.Status)
	}
	if job.RecipientsCount != 2 {
		t.Errorf("recipients = %d, want 2", job.RecipientsCount)
	}
	if job.RadiusKm != model.EmergencyRadiusKm {
		t.Errorf("radius = %v, want %v", job.RadiusKm, model.EmergencyRadiusKm)
	}
}

func TestBroadcastRespectsEmergencyToggle(t *testing.T) {
	env := newTestEnv(t, nil)
	pet := env.addLostPet(t, 47.6062, -122.3321)

	env.addDevice(t, "on", 47.6100, -122.3300, 1)
	env.addDevice(t, "off", 47.6100, -122.3400, 1)

	profile, _ := env.devices.Get("off")
	profile.EmergencyBroadcasts = false
	if err := env.devices.Upsert(profile); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	res, err := env.coord.Broadcast(context.Background(), pet.ID)
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if res.RecipientCount != 1 {
		t.Errorf("recipients = %d, want 1", res.RecipientCount)
	}
}

func TestBroadcastZeroRecipients(t *testing.T) {
	env := newTestEnv(t, nil)
	pet := env.addLostPet(t, 47.6062, -122.3321)

	res, err := env.coord.Broadcast(context.Background(), pet.ID)
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if !res.Success || res.RecipientCount != 0 {
		t.Errorf("result = %+v, want success with 0 recipients", res)
	}

	job, _ := env.jobs.GetByID(res.JobID)
	if job.Status != model.BroadcastStatusCompleted || job.RecipientsCount != 0 {
		t.Errorf("job = %+v", job)
	}
}

func TestBroadcastSplitsGatewayBatches(t *testing.T) {
	env := newTestEnv(t, nil)
	pet := env.addLostPet(t, 47.6062, -122.3321)

	// 5 nearby devices holding 50 tokens each: 250 messages total
	for i := 0; i < 5; i++ {
		env.addDevice(t, fmt.Sprintf("d%d", i), 47.6100, -122.3300, 50)
	}

	res, err := env.coord.Broadcast(context.Background(), pet.ID)
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if res.RecipientCount != 250 {
		t.Errorf("recipients = %d, want 250", res.RecipientCount)
	}

	sizes := env.batchSizes()
	want := []int{100, 100, 50}
	if len(sizes) != len(want) {
		t.Fatalf("batches = %v, want sizes %v", sizes, want)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Errorf("batch sizes = %v, want %v", sizes, want)
		}
	}
}

func TestBroadcastDropsDeadTokens(t *testing.T) {
	env := newTestEnv(t, map[string]bool{"tok-near-0": true})
	pet := env.addLostPet(t, 47.6062, -122.3321)
	env.addDevice(t, "near", 47.6100, -122.3300, 1)

	res, err := env.coord.Broadcast(context.Background(), pet.ID)
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	// Attempted counts include the dead token
	if res.RecipientCount != 1 {
		t.Errorf("recipients = %d, want 1", res.RecipientCount)
	}

	remaining, _ := env.tokens.ListByDevice("near")
	if len(remaining) != 0 {
		t.Errorf("tokens = %d, want 0 after DeviceNotRegistered", len(remaining))
	}
}

// brokenRadiusDirectory fails the spatial query so the fallback path runs.
// The other device lookups keep hitting the real store.
type brokenRadiusDirectory struct {
	*store.DeviceStore
	fallbackErr error
}

func (d *brokenRadiusDirectory) ListWithinRadius(lat, lng, radiusKm float64) ([]string, error) {
	return nil, errors.New("spatial query error")
}

func (d *brokenRadiusDirectory) ListFallback(limit int) ([]string, error) {
	if d.fallbackErr != nil {
		return nil, d.fallbackErr
	}
	return d.DeviceStore.ListFallback(limit)
}

func TestBroadcastFallsBackWhenRadiusQueryFails(t *testing.T) {
	env := newTestEnv(t, nil)
	pet := env.addLostPet(t, 47.6062, -122.3321)

	env.addDevice(t, "near", 47.6100, -122.3300, 1)
	env.addDevice(t, "far", 48.0000, -123.0000, 1) // ~65km, outside 15km
	env.coord.devices = &brokenRadiusDirectory{DeviceStore: env.devices}

	res, err := env.coord.Broadcast(context.Background(), pet.ID)
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	// The fallback population ignores distance, so the far device is
	// alerted too rather than nobody at all.
	if !res.Success || res.RecipientCount != 2 {
		t.Errorf("result = %+v, want success with 2 recipients", res)
	}
	job, _ := env.jobs.GetByID(res.JobID)
	if job.Status != model.BroadcastStatusCompleted {
		t.Errorf("status = %s, want completed", job.Status)
	}
}

func TestBroadcastMarksJobFailedWhenUnresolvable(t *testing.T) {
	env := newTestEnv(t, nil)
	pet := env.addLostPet(t, 47.6062, -122.3321)
	env.addDevice(t, "near", 47.6100, -122.3300, 1)
	env.coord.devices = &brokenRadiusDirectory{
		DeviceStore: env.devices,
		fallbackErr: errors.New("database gone"),
	}

	if _, err := env.coord.Broadcast(context.Background(), pet.ID); err == nil {
		t.Fatal("broadcast should fail when both queries error")
	}

	job, err := env.jobs.LatestByPet(pet.ID)
	if err != nil {
		t.Fatalf("latest job: %v", err)
	}
	if job == nil || job.Status != model.BroadcastStatusFailed {
		t.Errorf("job = %+v, want status failed", job)
	}
}

func TestBroadcastToleratesBatchFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	pet := env.addLostPet(t, 47.6062, -122.3321)

	// 4 nearby devices holding 50 tokens each: two full batches
	for i := 0; i < 4; i++ {
		env.addDevice(t, fmt.Sprintf("d%d", i), 47.6100, -122.3300, 50)
	}
	env.failNext.Store(true)

	res, err := env.coord.Broadcast(context.Background(), pet.ID)
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	// One batch died, its sibling still went out and the job completed.
	if !res.Success || res.RecipientCount != 200 {
		t.Errorf("result = %+v, want success with 200 attempted", res)
	}
	sizes := env.batchSizes()
	if len(sizes) != 1 || sizes[0] != 100 {
		t.Errorf("delivered batches = %v, want one batch of 100", sizes)
	}
	job, _ := env.jobs.GetByID(res.JobID)
	if job.Status != model.BroadcastStatusCompleted {
		t.Errorf("status = %s, want completed", job.Status)
	}
}

func TestBroadcastHonorsSoundToggle(t *testing.T) {
	env := newTestEnv(t, nil)
	pet := env.addLostPet(t, 47.6062, -122.3321)

	env.addDevice(t, "loud", 47.6100, -122.3300, 1)
	env.addDevice(t, "quiet", 47.6100, -122.3400, 1)
	profile, _ := env.devices.Get("quiet")
	profile.SoundEnabled = false
	if err := env.devices.Upsert(profile); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if _, err := env.coord.Broadcast(context.Background(), pet.ID); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	sounds := map[string]string{}
	env.mu.Lock()
	for _, batch := range env.batches {
		for _, m := range batch {
			sounds[m.To] = m.Sound
		}
	}
	env.mu.Unlock()
	if sounds["tok-loud-0"] != "default" {
		t.Errorf("loud sound = %q, want default", sounds["tok-loud-0"])
	}
	if sounds["tok-quiet-0"] != "" {
		t.Errorf("quiet sound = %q, want empty", sounds["tok-quiet-0"])
	}
}

func TestBroadcastRepeatedRunsAccumulateJobs(t *testing.T) {
	env := newTestEnv(t, nil)
	pet := env.addLostPet(t, 47.6062, -122.3321)

	for i := 0; i < 2; i++ {
		if _, err := env.coord.Broadcast(context.Background(), pet.ID); err != nil {
			t.Fatalf("broadcast %d: %v", i, err)
		}
	}

	count, err := env.jobs.CountByPet(pet.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("jobs = %d, want 2", count)
	}
}
