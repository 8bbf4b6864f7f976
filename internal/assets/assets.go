package assets

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/predyn/wager-api/internal/events"
	"github.com/predyn/wager-api/internal/ledger"
	"github.com/predyn/wager-api/internal/types"
	"github.com/predyn/wager-api/pkg/response"
)

// Service owns the registry of assets accepted for staking. The wrapped
// base asset is seeded at startup and can never be removed.
type Service struct {
	db      *Database
	state   *ledger.State
	events  *events.Publisher
	wrapped common.Address
}

func NewService(gormDB *gorm.DB, state *ledger.State, publisher *events.Publisher, wrapped common.Address) (*Service, error) {
	s := &Service{
		db:      NewDatabase(gormDB),
		state:   state,
		events:  publisher,
		wrapped: wrapped,
	}

	// Seed the wrapped base asset.
	if err := s.db.EnsureAsset(wrapped.Hex()); err != nil {
		return nil, err
	}
	return s, nil
}

// AddAsset registers an asset address for staking.
func (s *Service) AddAsset(asset common.Address) error {
	s.state.Lock()
	defer s.state.Unlock()

	if err := s.state.CheckNotPaused(); err != nil {
		return err
	}
	if asset == (common.Address{}) {
		return types.ErrZeroAddress
	}

	if err := s.db.EnsureAsset(asset.Hex()); err != nil {
		return err
	}

	log.Info().Str("asset", asset.Hex()).Msg("asset added to registry")
	s.events.Publish(types.Event{
		Type:  types.EventAssetAdded,
		Asset: asset.Hex(),
	})
	return nil
}

// RemoveAsset disables an asset for future stakes. The wrapped base
// asset is always permitted.
func (s *Service) RemoveAsset(asset common.Address) error {
	s.state.Lock()
	defer s.state.Unlock()

	if err := s.state.CheckNotPaused(); err != nil {
		return err
	}
	if asset == (common.Address{}) {
		return types.ErrZeroAddress
	}
	if asset == s.wrapped {
		return types.ErrCannotRemoveBase
	}

	if err := s.db.DisableAsset(asset.Hex()); err != nil {
		return err
	}

	log.Info().Str("asset", asset.Hex()).Msg("asset removed from registry")
	s.events.Publish(types.Event{
		Type:  types.EventAssetRemoved,
		Asset: asset.Hex(),
	})
	return nil
}

// IsSupported is the membership gate consulted by the bet ledger.
func (s *Service) IsSupported(asset common.Address) (bool, error) {
	return s.db.IsEnabled(asset.Hex())
}

// GinHandlers contains HTTP handlers for the asset registry.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// AddAssetHandler handles admin POST requests to register an asset.
func (h *GinHandlers) AddAssetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			Asset string `json:"asset" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := h.service.AddAsset(common.HexToAddress(request.Asset)); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"asset": common.HexToAddress(request.Asset).Hex()})
	}
}

// RemoveAssetHandler handles admin DELETE requests to disable an asset.
func (h *GinHandlers) RemoveAssetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		asset := c.Param("asset")
		if asset == "" {
			response.BadRequest(c, "asset address is required")
			return
		}

		if err := h.service.RemoveAsset(common.HexToAddress(asset)); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"asset": common.HexToAddress(asset).Hex()})
	}
}

// GetAssetHandler handles GET requests for the membership test.
func (h *GinHandlers) GetAssetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		asset := common.HexToAddress(c.Param("asset"))
		supported, err := h.service.IsSupported(asset)
		response.Handle(c, gin.H{"asset": asset.Hex(), "supported": supported}, err)
	}
}
