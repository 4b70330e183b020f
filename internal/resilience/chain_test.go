package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestChain_PrimarySucceeds(t *testing.T) {
	c := NewChain("primary", "primary", ChainConfig{})
	c.Add("fallback", "fallback")

	var used string
	err := c.Try(func(v string) error {
		used = v
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if used != "primary" {
		t.Errorf("used = %q, want the primary", used)
	}
}

func TestChain_FallsBackOnFailure(t *testing.T) {
	c := NewChain("primary", "primary", ChainConfig{})
	c.Add("fallback", "fallback")

	var attempts []string
	err := c.Try(func(v string) error {
		attempts = append(attempts, v)
		if v == "primary" {
			return errTest
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(attempts) != 2 || attempts[1] != "fallback" {
		t.Errorf("attempts = %v, want primary then fallback", attempts)
	}
}

func TestChain_AllFail(t *testing.T) {
	c := NewChain("primary", "primary", ChainConfig{})
	c.Add("fallback", "fallback")

	err := c.Try(func(string) error { return errTest })
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
}

func TestChain_SkipsOpenBreaker(t *testing.T) {
	c := NewChain("primary", "primary", ChainConfig{
		Breaker: BreakerConfig{FailureThreshold: 1, Cooldown: time.Hour},
	})
	c.Add("fallback", "fallback")

	// Trip the primary's breaker.
	_ = c.Try(func(v string) error {
		if v == "primary" {
			return errTest
		}
		return nil
	})

	var attempts []string
	err := c.Try(func(v string) error {
		attempts = append(attempts, v)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(attempts) != 1 || attempts[0] != "fallback" {
		t.Errorf("attempts = %v, want only the fallback while primary is open", attempts)
	}
}

func TestTryResult(t *testing.T) {
	c := NewChain(1, "one", ChainConfig{})
	c.Add("two", 2)

	got, err := TryResult(c, func(v int) (string, error) {
		if v == 1 {
			return "", errTest
		}
		return "from two", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "from two" {
		t.Errorf("result = %q", got)
	}
}

func TestTryResult_AllFail(t *testing.T) {
	c := NewChain(1, "one", ChainConfig{})

	got, err := TryResult(c, func(int) (string, error) {
		return "partial", errTest
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
	if got != "" {
		t.Errorf("result = %q, want zero value on failure", got)
	}
}
