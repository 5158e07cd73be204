package ledger

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mintforge/synth-api/pkg/response"
)

var (
	ErrInvalidAmount         = response.Kind(response.ErrValidation, "ledger: amount must be positive")
	ErrInsufficientBalance   = response.Kind(response.ErrGuard, "ledger: insufficient balance")
	ErrInsufficientAllowance = response.Kind(response.ErrGuard, "ledger: insufficient allowance")
)

// Service is the opaque fungible-token balance store the protocol modules
// mint into, burn from, and move collateral through
type Service struct {
	db *Database
}

// NewService creates a new ledger service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// WithTx returns a service bound to the given transaction so ledger writes
// participate in the caller's atomic mutation
func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{db: NewDatabase(tx)}
}

// Issue credits newly created units of an asset to an account
func (s *Service) Issue(assetKey, to string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	balance, err := s.db.GetBalance(assetKey, to)
	if err != nil {
		return fmt.Errorf("failed to fetch balance: %w", err)
	}
	if balance == nil {
		balance = &Balance{
			AssetKey:  assetKey,
			Account:   to,
			Amount:    decimal.Zero,
			CreatedAt: time.Now(),
		}
	}

	balance.Amount = balance.Amount.Add(amount)
	balance.UpdatedAt = time.Now()
	return s.db.SaveBalance(balance)
}

// Burn destroys units of an asset held by an account
func (s *Service) Burn(assetKey, from string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	balance, err := s.db.GetBalance(assetKey, from)
	if err != nil {
		return fmt.Errorf("failed to fetch balance: %w", err)
	}
	if balance == nil || balance.Amount.LessThan(amount) {
		return ErrInsufficientBalance
	}

	balance.Amount = balance.Amount.Sub(amount)
	balance.UpdatedAt = time.Now()
	return s.db.SaveBalance(balance)
}

// Transfer moves units between two accounts
func (s *Service) Transfer(assetKey, from, to string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := s.Burn(assetKey, from, amount); err != nil {
		return err
	}
	return s.Issue(assetKey, to, amount)
}

// Approve sets a spender's allowance over an owner's balance, replacing any
// previous allowance
func (s *Service) Approve(assetKey, owner, spender string, amount decimal.Decimal) error {
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}

	allowance, err := s.db.GetAllowance(assetKey, owner, spender)
	if err != nil {
		return fmt.Errorf("failed to fetch allowance: %w", err)
	}
	if allowance == nil {
		allowance = &Allowance{
			AssetKey:  assetKey,
			Owner:     owner,
			Spender:   spender,
			CreatedAt: time.Now(),
		}
	}

	allowance.Amount = amount
	allowance.UpdatedAt = time.Now()
	if err := s.db.SaveAllowance(allowance); err != nil {
		return err
	}

	log.Debug().
		Str("service", "ledger").
		Str("asset_key", assetKey).
		Str("owner", owner).
		Str("spender", spender).
		Str("amount", amount.String()).
		Msg("allowance updated")
	return nil
}

// TransferFrom moves units from an owner using a spender's allowance. The
// allowance is decremented by the transferred amount.
func (s *Service) TransferFrom(assetKey, spender, owner, to string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	allowance, err := s.db.GetAllowance(assetKey, owner, spender)
	if err != nil {
		return fmt.Errorf("failed to fetch allowance: %w", err)
	}
	if allowance == nil || allowance.Amount.LessThan(amount) {
		return ErrInsufficientAllowance
	}

	if err := s.Transfer(assetKey, owner, to, amount); err != nil {
		return err
	}

	allowance.Amount = allowance.Amount.Sub(amount)
	allowance.UpdatedAt = time.Now()
	return s.db.SaveAllowance(allowance)
}

// BalanceOf returns an account's balance of an asset, zero when never funded
func (s *Service) BalanceOf(assetKey, account string) (decimal.Decimal, error) {
	balance, err := s.db.GetBalance(assetKey, account)
	if err != nil {
		return decimal.Zero, err
	}
	if balance == nil {
		return decimal.Zero, nil
	}
	return balance.Amount, nil
}

// TotalSupply returns the circulating supply of an asset
func (s *Service) TotalSupply(assetKey string) (decimal.Decimal, error) {
	return s.db.SumSupply(assetKey)
}

// GinHandlers contains HTTP handlers for ledger endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for ledger endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// GetBalanceHandler handles GET requests for an account balance
func (h *GinHandlers) GetBalanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		assetKey := c.Param("key")
		account := c.Param("account")

		amount, err := h.service.BalanceOf(assetKey, account)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{
			"asset_key": assetKey,
			"account":   account,
			"amount":    amount,
		})
	}
}

// ApproveHandler handles POST requests to set a spending allowance.
// The owner is the authenticated account.
func (h *GinHandlers) ApproveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.GetString("clientID")
		if owner == "" {
			response.Unauthorized(c, "Missing account identity")
			return
		}

		var req ApproveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		err := h.service.Approve(req.AssetKey, owner, req.Spender, req.Amount)
		response.Handle(c, gin.H{"approved": req.Amount}, err)
	}
}

// TransferHandler handles POST requests to transfer from the authenticated
// account to another
func (h *GinHandlers) TransferHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		from := c.GetString("clientID")
		if from == "" {
			response.Unauthorized(c, "Missing account identity")
			return
		}

		var req TransferRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		err := h.service.Transfer(req.AssetKey, from, req.To, req.Amount)
		response.Handle(c, gin.H{"transferred": req.Amount}, err)
	}
}
