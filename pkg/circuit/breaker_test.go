package circuit

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestCircuitBreakerBasicOperation(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	config := BreakerConfig{
		Name:             "test",
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          100 * time.Millisecond,
		HalfOpenMaxCalls: 5,
	}

	breaker := NewBreaker(config, logger)

	err := breaker.Execute(func() error {
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	if breaker.State() != Closed {
		t.Errorf("Expected state CLOSED, got %v", breaker.State())
	}
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	config := BreakerConfig{
		Name:             "test",
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          100 * time.Millisecond,
		HalfOpenMaxCalls: 5,
	}

	breaker := NewBreaker(config, logger)

	testErr := errors.New("test error")
	for i := 0; i < 3; i++ {
		breaker.Execute(func() error {
			return testErr
		})
	}

	if breaker.State() != Open {
		t.Errorf("Expected state OPEN after %d failures, got %v", 3, breaker.State())
	}

	err := breaker.Execute(func() error {
		t.Error("Function should not be executed when circuit is open")
		return nil
	})

	if err == nil {
		t.Error("Expected error when circuit is open")
	}
}

func TestCircuitBreakerHalfOpenTransition(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	config := BreakerConfig{
		Name:             "test",
		FailureThreshold: 2,
		SuccessThreshold: 2,
		Timeout:          50 * time.Millisecond,
		HalfOpenMaxCalls: 5,
	}

	breaker := NewBreaker(config, logger)

	testErr := errors.New("test error")
	for i := 0; i < 2; i++ {
		breaker.Execute(func() error {
			return testErr
		})
	}

	if breaker.State() != Open {
		t.Fatalf("Expected state OPEN, got %v", breaker.State())
	}

	time.Sleep(60 * time.Millisecond)

	var executedCount int32
	breaker.Execute(func() error {
		atomic.AddInt32(&executedCount, 1)
		return nil
	})

	if breaker.State() != HalfOpen {
		t.Errorf("Expected state HALF_OPEN after timeout, got %v", breaker.State())
	}

	if executedCount != 1 {
		t.Errorf("Expected function to execute once, got %d", executedCount)
	}
}

func TestCircuitBreakerClosesAfterSuccesses(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	config := BreakerConfig{
		Name:             "test",
		FailureThreshold: 2,
		SuccessThreshold: 2,
		Timeout:          50 * time.Millisecond,
		HalfOpenMaxCalls: 5,
	}

	breaker := NewBreaker(config, logger)

	testErr := errors.New("test error")
	for i := 0; i < 2; i++ {
		breaker.Execute(func() error {
			return testErr
		})
	}

	time.Sleep(60 * time.Millisecond)

	for i := 0; i < 2; i++ {
		err := breaker.Execute(func() error {
			return nil
		})
		if err != nil {
			t.Fatalf("Unexpected error in success call %d: %v", i, err)
		}
	}

	if breaker.State() != Closed {
		t.Errorf("Expected state CLOSED after successes, got %v", breaker.State())
	}
}

func TestCircuitBreakerConcurrentExecutions(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	config := BreakerConfig{
		Name:             "test",
		FailureThreshold: 100,
		SuccessThreshold: 2,
		Timeout:          1 * time.Second,
		HalfOpenMaxCalls: 50,
	}

	breaker := NewBreaker(config, logger)

	const concurrentCalls = 10
	const sleepDuration = 100 * time.Millisecond

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrentCalls)

	for i := 0; i < concurrentCalls; i++ {
		go func() {
			defer wg.Done()
			breaker.Execute(func() error {
				time.Sleep(sleepDuration)
				return nil
			})
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	maxExpectedTime := sleepDuration * 3
	if elapsed > maxExpectedTime {
		t.Errorf("Concurrent executions appear to be serial. Took %v, expected ~%v",
			elapsed, sleepDuration)
	}
}

func TestCircuitBreakerHalfOpenFailureReturnsToOpen(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	config := BreakerConfig{
		Name:             "test",
		FailureThreshold: 2,
		SuccessThreshold: 2,
		Timeout:          50 * time.Millisecond,
		HalfOpenMaxCalls: 5,
	}

	breaker := NewBreaker(config, logger)

	testErr := errors.New("test error")
	for i := 0; i < 2; i++ {
		breaker.Execute(func() error {
			return testErr
		})
	}

	time.Sleep(60 * time.Millisecond)

	breaker.Execute(func() error {
		return nil
	})

	if breaker.State() != HalfOpen {
		t.Fatalf("Expected HALF_OPEN, got %v", breaker.State())
	}

	breaker.Execute(func() error {
		return testErr
	})

	if breaker.State() != Open {
		t.Errorf("Expected state OPEN after failure in HALF_OPEN, got %v", breaker.State())
	}
}

func TestCircuitBreakerHalfOpenMaxCalls(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	config := BreakerConfig{
		Name:             "test",
		FailureThreshold: 2,
		SuccessThreshold: 5,
		Timeout:          50 * time.Millisecond,
		HalfOpenMaxCalls: 3,
	}

	breaker := NewBreaker(config, logger)

	testErr := errors.New("test error")
	for i := 0; i < 2; i++ {
		breaker.Execute(func() error {
			return testErr
		})
	}

	time.Sleep(60 * time.Millisecond)

	var executedCount int32
	for i := 0; i < 5; i++ {
		err := breaker.Execute(func() error {
			atomic.AddInt32(&executedCount, 1)
			return nil
		})

		if i >= config.HalfOpenMaxCalls && err == nil {
			t.Errorf("Call %d should have been rejected (max=%d)", i, config.HalfOpenMaxCalls)
		}
	}

	if executedCount > int32(config.HalfOpenMaxCalls) {
		t.Errorf("Executed %d calls, expected max %d", executedCount, config.HalfOpenMaxCalls)
	}
}

func BenchmarkCircuitBreakerParallel(b *testing.B) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	config := BreakerConfig{
		Name:             "bench",
		FailureThreshold: 1000,
		SuccessThreshold: 2,
		Timeout:          1 * time.Second,
	}

	breaker := NewBreaker(config, logger)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			breaker.Execute(func() error {
				time.Sleep(10 * time.Microsecond)
				return nil
			})
		}
	})
}
