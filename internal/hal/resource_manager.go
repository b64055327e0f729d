package hal

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"rover/internal/logging"
)

// ErrClaimed is returned when a resource is already held by another owner.
var ErrClaimed = errors.New("resource already claimed")

// Resource kinds tracked by the ResourceManager.
const (
	KindPin        = "pin"
	KindPWMChannel = "pwm_channel"
	KindSerialPort = "serial_port"
)

// Claim records who holds a hardware resource.
type Claim struct {
	Kind      string
	ID        string
	Owner     string
	ClaimedAt time.Time
}

// ResourceManager tracks ownership of pins, PWM channels and serial ports so
// two components can never drive the same line.
type ResourceManager struct {
	claims     map[string]map[string]*Claim // kind -> id -> claim
	claimsLock sync.RWMutex
	logger     *logging.Logger
}

func NewResourceManager() *ResourceManager {
	return &ResourceManager{
		claims: make(map[string]map[string]*Claim),
		logger: logging.GetLogger("hal_resource_manager"),
	}
}

// Claim takes a resource for owner. Claiming a held resource fails with
// ErrClaimed, even when the owner is the same.
func (rm *ResourceManager) Claim(kind, id, owner string) error {
	rm.claimsLock.Lock()
	defer rm.claimsLock.Unlock()

	byID, exists := rm.claims[kind]
	if !exists {
		byID = make(map[string]*Claim)
		rm.claims[kind] = byID
	}

	if existing, held := byID[id]; held {
		return fmt.Errorf("%w: %s %s is held by %s", ErrClaimed, kind, id, existing.Owner)
	}

	byID[id] = &Claim{Kind: kind, ID: id, Owner: owner, ClaimedAt: time.Now()}
	rm.logger.Debug("Resource claimed", "kind", kind, "id", id, "owner", owner)
	return nil
}

// ClaimAll claims every id of one kind, rolling back on the first failure.
func (rm *ResourceManager) ClaimAll(kind string, ids []string, owner string) error {
	for i, id := range ids {
		if err := rm.Claim(kind, id, owner); err != nil {
			for _, taken := range ids[:i] {
				if rerr := rm.Release(kind, taken); rerr != nil {
					rm.logger.Error("Failed to roll back claim", "kind", kind, "id", taken, "error", rerr)
				}
			}
			return err
		}
	}
	return nil
}

func (rm *ResourceManager) Release(kind, id string) error {
	rm.claimsLock.Lock()
	defer rm.claimsLock.Unlock()

	claim, exists := rm.claims[kind][id]
	if !exists {
		return fmt.Errorf("%s %s is not claimed", kind, id)
	}

	delete(rm.claims[kind], id)
	rm.logger.Debug("Resource released", "kind", kind, "id", id, "was_owned_by", claim.Owner)
	return nil
}

// Owner returns the holder of a resource, or false when it is free.
func (rm *ResourceManager) Owner(kind, id string) (string, bool) {
	rm.claimsLock.RLock()
	defer rm.claimsLock.RUnlock()

	claim, exists := rm.claims[kind][id]
	if !exists {
		return "", false
	}
	return claim.Owner, true
}

// Claims returns a copy of every active claim ordered by kind then id.
func (rm *ResourceManager) Claims() []Claim {
	rm.claimsLock.RLock()
	defer rm.claimsLock.RUnlock()

	var result []Claim
	for _, byID := range rm.claims {
		for _, claim := range byID {
			result = append(result, *claim)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Kind != result[j].Kind {
			return result[i].Kind < result[j].Kind
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// ReleaseAll drops every claim, warning about each one still held.
func (rm *ResourceManager) ReleaseAll() {
	rm.claimsLock.Lock()
	defer rm.claimsLock.Unlock()

	for kind, byID := range rm.claims {
		for id, claim := range byID {
			rm.logger.Warn("Force releasing claimed resource during shutdown",
				"kind", kind, "id", id, "owner", claim.Owner)
		}
	}
	rm.claims = make(map[string]map[string]*Claim)
}
