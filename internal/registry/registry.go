package registry

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/mintforge/synth-api/internal/events"
	"github.com/mintforge/synth-api/pkg/response"
)

var (
	ErrLengthMismatch = response.Kind(response.ErrValidation, "registry: names and addresses must have equal length")
	ErrMissingAddress = response.Kind(response.ErrNotFound, "registry: address not found")
)

// Service is the name->address registry every other module resolves its
// collaborators through
type Service struct {
	db     *Database
	events *events.Recorder
}

// NewService creates a new registry service with the given database connection
func NewService(gormDB *gorm.DB, recorder *events.Recorder) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		events: recorder,
	}
}

// ImportAddresses bulk-imports name->address pairs, overwriting existing
// entries idempotently. One audit event is recorded per pair.
func (s *Service) ImportAddresses(names, addresses []string) error {
	logger := log.With().
		Str("service", "registry").
		Int("count", len(names)).
		Logger()

	if len(names) != len(addresses) {
		logger.Error().
			Int("names", len(names)).
			Int("addresses", len(addresses)).
			Msg("import rejected, array length mismatch")
		return ErrLengthMismatch
	}

	for i, name := range names {
		if err := s.db.UpsertName(name, addresses[i]); err != nil {
			return fmt.Errorf("failed to import address for %q: %w", name, err)
		}
		if err := s.events.Record(events.TypeAddressImported, "", addresses[i], map[string]interface{}{
			"name": name,
		}); err != nil {
			logger.Error().Err(err).Str("name", name).Msg("failed to record import event")
		}
	}

	logger.Info().Msg("imported registry addresses")
	return nil
}

// GetAddress returns the address registered for a name, or the empty string
// when absent. It never fails on a missing entry.
func (s *Service) GetAddress(name string) (string, error) {
	record, err := s.db.GetName(name)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", nil
	}
	return record.Address, nil
}

// RequireAndGetAddress returns the address registered for a name, failing
// with the caller-supplied reason when the entry is absent
func (s *Service) RequireAndGetAddress(name, reason string) (string, error) {
	address, err := s.GetAddress(name)
	if err != nil {
		return "", err
	}
	if address == "" {
		return "", fmt.Errorf("%w: %s (%s)", ErrMissingAddress, name, reason)
	}
	return address, nil
}

// List returns every registered name record
func (s *Service) List() ([]NameRecord, error) {
	return s.db.ListNames()
}

// GinHandlers contains HTTP handlers for registry endpoints
type GinHandlers struct {
	service *Service
	caches  []*Cache
}

// NewGinHandlers creates a new set of HTTP handlers for registry endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// TrackCaches registers the dependency caches surfaced by the cache-status
// endpoint. Call before route setup.
func (h *GinHandlers) TrackCaches(caches ...*Cache) {
	h.caches = append(h.caches, caches...)
}

// ImportAddressesHandler handles POST requests to bulk-import addresses.
// Requires admin authentication.
func (h *GinHandlers) ImportAddressesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ImportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		err := h.service.ImportAddresses(req.Names, req.Addresses)
		response.Handle(c, gin.H{"imported": len(req.Names)}, err)
	}
}

// GetAddressHandler handles GET requests for a single name lookup
func (h *GinHandlers) GetAddressHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")

		address, err := h.service.GetAddress(name)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		if address == "" {
			response.NotFound(c, "No address registered for name")
			return
		}
		response.Success(c, gin.H{"name": name, "address": address})
	}
}

// ListAddressesHandler handles GET requests listing all registered names
func (h *GinHandlers) ListAddressesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := h.service.List()
		response.Handle(c, records, err)
	}
}

// CacheStatusHandler reports whether each tracked module's dependency cache
// still matches the live registry. Requires admin authentication.
func (h *GinHandlers) CacheStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		statuses := make([]CacheStatus, 0, len(h.caches))
		for _, cache := range h.caches {
			current, err := cache.IsCurrent(h.service)
			if err != nil {
				response.Handle(c, nil, err)
				return
			}
			statuses = append(statuses, CacheStatus{Module: cache.Module(), Current: current})
		}
		response.Success(c, statuses)
	}
}
