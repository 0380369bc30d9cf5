package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d error(s):\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// Validate performs comprehensive configuration validation
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateTrading()...)
	errors = append(errors, c.validateScoring()...)
	errors = append(errors, c.validateAllocation()...)
	errors = append(errors, c.validateRisk()...)
	errors = append(errors, c.validateScheduler()...)
	errors = append(errors, c.validateExchange()...)

	if len(errors) > 0 {
		return errors
	}

	return nil
}

func (c *Config) validateTrading() ValidationErrors {
	var errors ValidationErrors

	if c.Trading.Mode != "simulated" && c.Trading.Mode != "live" {
		errors = append(errors, ValidationError{
			Field:   "trading.mode",
			Message: "must be 'simulated' or 'live'",
		})
	}

	if c.Trading.MarketType != "spot" && c.Trading.MarketType != "futures" {
		errors = append(errors, ValidationError{
			Field:   "trading.market_type",
			Message: "must be 'spot' or 'futures'",
		})
	}

	if len(c.Trading.Symbols) == 0 {
		errors = append(errors, ValidationError{
			Field:   "trading.symbols",
			Message: "at least one symbol is required",
		})
	}

	if c.Trading.InitialCapital <= 0 {
		errors = append(errors, ValidationError{
			Field:   "trading.initial_capital",
			Message: "must be positive",
		})
	}

	if c.Trading.Leverage < 1 {
		errors = append(errors, ValidationError{
			Field:   "trading.leverage",
			Message: "must be >= 1",
		})
	}

	if c.Trading.Leverage > 1 && c.Trading.MarketType == "spot" {
		errors = append(errors, ValidationError{
			Field:   "trading.leverage",
			Message: "leverage above 1 requires market_type 'futures'",
		})
	}

	return errors
}

func (c *Config) validateScoring() ValidationErrors {
	var errors ValidationErrors

	sum := c.Scoring.Weights.Sum()
	if sum < 0.99 || sum > 1.01 {
		errors = append(errors, ValidationError{
			Field:   "scoring.weights",
			Message: fmt.Sprintf("weights must sum to 1.0 +/- 0.01, got %.4f", sum),
		})
	}

	if !(c.Scoring.SellThreshold < c.Scoring.BuyThreshold &&
		c.Scoring.BuyThreshold < c.Scoring.StrongBuyThreshold) {
		errors = append(errors, ValidationError{
			Field:   "scoring",
			Message: "thresholds must satisfy sell < buy < strong_buy",
		})
	}

	return errors
}

func (c *Config) validateAllocation() ValidationErrors {
	var errors ValidationErrors

	if c.Allocation.ReserveRatio < 0 || c.Allocation.ReserveRatio >= 1 {
		errors = append(errors, ValidationError{
			Field:   "allocation.reserve_ratio",
			Message: "must be in [0, 1)",
		})
	}

	if c.Allocation.MinPct <= 0 || c.Allocation.MaxPct > 1 || c.Allocation.MinPct > c.Allocation.MaxPct {
		errors = append(errors, ValidationError{
			Field:   "allocation",
			Message: "requires 0 < min_pct <= max_pct <= 1",
		})
	}

	if c.Allocation.StrongBuyBoost < 1 {
		errors = append(errors, ValidationError{
			Field:   "allocation.strong_buy_boost",
			Message: "must be >= 1",
		})
	}

	if c.Allocation.MinOrderNotional <= 0 {
		errors = append(errors, ValidationError{
			Field:   "allocation.min_order_notional",
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validateRisk() ValidationErrors {
	var errors ValidationErrors

	if c.Risk.StopLossPct <= 0 {
		errors = append(errors, ValidationError{
			Field:   "risk.stop_loss_pct",
			Message: "must be positive",
		})
	}

	if c.Risk.DailyLossLimitPct >= 0 {
		errors = append(errors, ValidationError{
			Field:   "risk.daily_loss_limit_pct",
			Message: "must be negative (e.g. -0.05 for a 5% daily loss limit)",
		})
	}

	if c.Risk.MaxHoldMinutes <= 0 {
		errors = append(errors, ValidationError{
			Field:   "risk.max_hold_minutes",
			Message: "must be positive",
		})
	}

	if _, err := time.LoadLocation(c.Risk.Timezone); err != nil {
		errors = append(errors, ValidationError{
			Field:   "risk.timezone",
			Message: fmt.Sprintf("unknown timezone %q", c.Risk.Timezone),
		})
	}

	return errors
}

func (c *Config) validateScheduler() ValidationErrors {
	var errors ValidationErrors

	intervals := map[string]int{
		"scheduler.data_collection_interval_min": c.Scheduler.DataIntervalMin,
		"scheduler.indicator_calc_interval_min":  c.Scheduler.IndicatorIntervalMin,
		"scheduler.scoring_interval_min":         c.Scheduler.ScoringIntervalMin,
		"scheduler.buy_execution_interval_min":   c.Scheduler.BuyIntervalMin,
		"scheduler.risk_check_interval_min":      c.Scheduler.RiskIntervalMin,
	}
	for field, minutes := range intervals {
		if minutes <= 0 {
			errors = append(errors, ValidationError{
				Field:   field,
				Message: "must be positive",
			})
		}
	}

	if _, err := parseClock(c.Scheduler.DailyFeedbackAt); err != nil {
		errors = append(errors, ValidationError{
			Field:   "scheduler.daily_feedback_at",
			Message: "must be HH:MM",
		})
	}

	return errors
}

func (c *Config) validateExchange() ValidationErrors {
	var errors ValidationErrors

	if c.Trading.IsLive() {
		if c.Exchange.APIKey == "" {
			errors = append(errors, ValidationError{
				Field:   "exchange.api_key",
				Message: "required when trading.mode is 'live'",
			})
		}
		if c.Exchange.SecretKey == "" {
			errors = append(errors, ValidationError{
				Field:   "exchange.secret_key",
				Message: "required when trading.mode is 'live'",
			})
		}
	}

	if c.Exchange.RateLimitMS < 0 {
		errors = append(errors, ValidationError{
			Field:   "exchange.rate_limit_ms",
			Message: "must be non-negative",
		})
	}

	return errors
}

// parseClock parses an "HH:MM" wall-clock string into hour and minute.
func parseClock(s string) ([2]int, error) {
	var hh, mm int
	if _, err := fmt.Sscanf(s, "%d:%d", &hh, &mm); err != nil {
		return [2]int{}, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return [2]int{}, fmt.Errorf("invalid clock %q", s)
	}
	return [2]int{hh, mm}, nil
}

// ParseClock exposes clock parsing for the scheduler's daily job.
func ParseClock(s string) (hour, minute int, err error) {
	hm, err := parseClock(s)
	if err != nil {
		return 0, 0, err
	}
	return hm[0], hm[1], nil
}
