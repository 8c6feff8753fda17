// Package circuit implements a circuit breaker for chooser.Admin's
// metadata calls, trimmed from the teacher's generic breaker to the
// fields a Sarama admin client actually needs (no YAML-config
// round-tripping, no enterprise-stats export, no callback hooks that
// nothing in this repo subscribes to).
package circuit

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State is the circuit breaker's state machine position.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

// BreakerConfig configuração do circuit breaker
type BreakerConfig struct {
	Name             string
	FailureThreshold int           // Falhas consecutivas para abrir
	SuccessThreshold int           // Sucessos para fechar
	Timeout          time.Duration // Tempo no estado aberto
	HalfOpenMaxCalls int           // Máximo de calls no estado half-open
}

// Breaker implementa o padrão Circuit Breaker
type Breaker struct {
	config BreakerConfig
	logger *logrus.Logger

	state         State
	failures      int64
	successes     int64
	requests      int64
	lastFailure   time.Time
	lastSuccess   time.Time
	nextRetryTime time.Time

	halfOpenCalls     int
	halfOpenSuccesses int
	halfOpenStartTime time.Time
	maxHalfOpen       int

	mu sync.RWMutex
}

// NewBreaker cria um novo circuit breaker
func NewBreaker(config BreakerConfig, logger *logrus.Logger) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 3
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = 10
	}

	return &Breaker{
		config:      config,
		logger:      logger,
		state:       Closed,
		maxHalfOpen: config.HalfOpenMaxCalls,
	}
}

// Execute executa uma função com proteção do circuit breaker.
// O método é dividido em 3 fases para evitar manter o lock durante execução:
// 1. Pré-verificação (com lock): valida estado e permite entrada
// 2. Execução (SEM lock): executa fn() em paralelo
// 3. Pós-registro (com lock): atualiza contadores, estado e verifica trip
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()

	b.requests++

	if b.state == Open {
		if time.Now().Before(b.nextRetryTime) {
			b.mu.Unlock()
			return fmt.Errorf("circuit breaker %s is open", b.config.Name)
		}
		b.setState(HalfOpen)
		b.halfOpenCalls = 0
		b.halfOpenSuccesses = 0
		b.halfOpenStartTime = time.Now()
	}

	if b.state == HalfOpen {
		halfOpenTimeout := b.config.Timeout * 2
		if time.Since(b.halfOpenStartTime) > halfOpenTimeout {
			b.logger.WithField("breaker", b.config.Name).Warn("circuit breaker half-open timeout, reopening")
			b.trip()
			b.mu.Unlock()
			return fmt.Errorf("circuit breaker %s half-open timeout", b.config.Name)
		}

		if b.halfOpenCalls >= b.maxHalfOpen {
			b.mu.Unlock()
			return fmt.Errorf("circuit breaker %s is half-open (max calls reached)", b.config.Name)
		}
		b.halfOpenCalls++
	}

	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.onExecutionFailure(err)
		if b.shouldTrip() {
			b.trip()
		}
		return err
	}

	b.onExecutionSuccess()
	return nil
}

func (b *Breaker) shouldTrip() bool {
	if b.state != Closed {
		return false
	}
	return b.failures >= int64(b.config.FailureThreshold)
}

func (b *Breaker) trip() {
	if b.state == Open {
		return
	}

	b.setState(Open)
	b.nextRetryTime = time.Now().Add(b.config.Timeout)

	b.logger.WithFields(logrus.Fields{
		"breaker":         b.config.Name,
		"failures":        b.failures,
		"next_retry_time": b.nextRetryTime,
	}).Warn("circuit breaker opened")
}

func (b *Breaker) onExecutionFailure(err error) {
	b.failures++
	b.lastFailure = time.Now()

	if b.state == HalfOpen {
		b.trip()
	}
}

func (b *Breaker) onExecutionSuccess() {
	b.successes++
	b.lastSuccess = time.Now()

	if b.state == HalfOpen {
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.config.SuccessThreshold {
			b.setState(Closed)
			b.reset()
		}
	} else if b.state == Closed {
		if b.failures > 0 {
			b.failures--
		}
	}
}

func (b *Breaker) reset() {
	b.failures = 0
	b.halfOpenCalls = 0
	b.halfOpenSuccesses = 0
	b.nextRetryTime = time.Time{}

	b.logger.WithFields(logrus.Fields{
		"breaker":   b.config.Name,
		"successes": b.successes,
	}).Info("circuit breaker reset")
}

func (b *Breaker) setState(newState State) {
	if b.state == newState {
		return
	}

	oldState := b.state
	b.state = newState

	b.logger.WithFields(logrus.Fields{
		"breaker":   b.config.Name,
		"old_state": oldState,
		"new_state": newState,
		"failures":  b.failures,
		"successes": b.successes,
	}).Info("circuit breaker state changed")
}

// State retorna o estado atual do circuit breaker
func (b *Breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// IsOpen verifica se o circuit breaker está aberto
func (b *Breaker) IsOpen() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state == Open
}

// Reset força o reset do circuit breaker
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.setState(Closed)
	b.reset()
}
