// Package dispatch orchestrates a request through authorize → construct →
// sign → (optional) broadcast, enforcing the per-wallet sequence discipline
// and recording an audit line for every attempt.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tradewind-labs/signing_service/internal/auth"
	"github.com/tradewind-labs/signing_service/internal/chain"
	"github.com/tradewind-labs/signing_service/internal/metrics"
	"github.com/tradewind-labs/signing_service/internal/permission"
	"github.com/tradewind-labs/signing_service/internal/wallet"
	"github.com/tradewind-labs/signing_service/pkg/logger"
)

// ErrUnknownWallet is returned when the wallet name does not resolve.
// The HTTP layer deliberately renders it like an authorization failure so
// callers cannot probe for wallet names.
var ErrUnknownWallet = errors.New("unknown wallet name")

// ErrIPNotAllowed is returned when the caller IP fails a wallet's allow-list.
var ErrIPNotAllowed = errors.New("caller address not allowed for wallet")

// ValidationError marks malformed message input. The caller must fix the
// request; no external call was made.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// SigningError marks a key or environment misconfiguration. Fatal for the
// request and operator-visible; never client-retryable.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string { return fmt.Sprintf("signing failed: %v", e.Err) }
func (e *SigningError) Unwrap() error { return e.Err }

// BroadcastError marks a failed submission. The sequence number was not
// advanced. Ambiguous outcomes (timeouts) tell the caller to resync rather
// than retry, since retrying with the same sequence after an ambiguous
// outcome risks double submission.
type BroadcastError struct {
	Err       error
	Result    *chain.BroadcastResult // node response, when one was received
	Ambiguous bool
}

func (e *BroadcastError) Error() string {
	if e.Ambiguous {
		return fmt.Sprintf("broadcast outcome unknown, resync the wallet before retrying: %v", e.Err)
	}
	return fmt.Sprintf("broadcast rejected, safe to retry: %v", e.Err)
}

func (e *BroadcastError) Unwrap() error { return e.Err }

// CapabilityFor maps a message kind to the capability that guards it.
// Freeze and unfreeze share one capability.
func CapabilityFor(msg chain.Msg) permission.Capability {
	switch msg.(type) {
	case chain.NewOrderMsg, chain.CancelOrderMsg:
		return permission.Trade
	case chain.TransferMsg:
		return permission.Transfer
	case chain.FreezeMsg, chain.UnfreezeMsg:
		return permission.Freeze
	default:
		return ""
	}
}

// Dispatcher runs sign and broadcast requests against the wallet pool.
type Dispatcher struct {
	registry         *wallet.Registry
	log              *logger.Logger
	metrics          *metrics.Metrics
	broadcastTimeout time.Duration
}

// Config configures the dispatcher.
type Config struct {
	Registry         *wallet.Registry
	Log              *logger.Logger
	Metrics          *metrics.Metrics
	BroadcastTimeout time.Duration
}

// New creates a dispatcher.
func New(cfg Config) *Dispatcher {
	log := cfg.Log
	if log == nil {
		log = logger.NewDefault("dispatch")
	}
	timeout := cfg.BroadcastTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		registry:         cfg.Registry,
		log:              log,
		metrics:          cfg.Metrics,
		broadcastTimeout: timeout,
	}
}

// Request carries one authorized operation attempt.
type Request struct {
	User       *auth.User
	WalletName string
	ClientIP   string
	Msg        chain.Msg
	Sync       bool // broadcast submission mode, passed through verbatim
}

// resolve authorizes the request against the wallet pool. No message is
// constructed and no external call is made when authorization fails.
func (d *Dispatcher) resolve(req Request, capability permission.Capability) (*wallet.Wallet, error) {
	w := d.registry.Resolve(req.WalletName)
	if w == nil {
		return nil, ErrUnknownWallet
	}
	if req.ClientIP != "" && !w.IPAuthorised(req.ClientIP) {
		return nil, ErrIPNotAllowed
	}
	if err := permission.Authorize(req.WalletName, w.Capabilities(), req.User.Grants, capability); err != nil {
		return nil, err
	}
	return w, nil
}

// Sign authorizes and signs a message without broadcasting it. The wallet's
// current sequence is read without being reserved, so the returned payload
// is advisory only and the sequence is never mutated.
func (d *Dispatcher) Sign(ctx context.Context, req Request) (string, error) {
	capability := CapabilityFor(req.Msg)
	w, err := d.resolve(req, capability)
	if err != nil {
		return "", err
	}

	if err := req.Msg.Validate(); err != nil {
		return "", &ValidationError{Err: err}
	}

	acct, seq, err := w.Account(ctx)
	if err != nil {
		return "", &SigningError{Err: err}
	}

	signed, err := chain.SignMsg(w.Keys(), req.Msg, acct, seq, w.ChainID())
	d.audit(req, "sign", seq, err)
	if err != nil {
		return "", &SigningError{Err: err}
	}
	return signed, nil
}

// Broadcast authorizes, signs and submits a message inside the wallet's
// exclusive section. The sequence advances by one only when the node accepts
// the submission; every failure path leaves it untouched.
func (d *Dispatcher) Broadcast(ctx context.Context, req Request) (*chain.BroadcastResult, error) {
	capability := CapabilityFor(req.Msg)
	w, err := d.resolve(req, capability)
	if err != nil {
		return nil, err
	}

	if err := req.Msg.Validate(); err != nil {
		return nil, &ValidationError{Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, d.broadcastTimeout)
	defer cancel()

	var result *chain.BroadcastResult
	err = w.WithNextSequence(ctx, func(client wallet.NodeClient, acct, seq uint64) error {
		signed, err := chain.SignMsg(w.Keys(), req.Msg, acct, seq, w.ChainID())
		if err != nil {
			d.audit(req, "broadcast", seq, err)
			return &SigningError{Err: err}
		}

		result, err = client.BroadcastHex(ctx, signed, req.Sync)
		d.audit(req, "broadcast", seq, err)
		if err != nil {
			return &BroadcastError{
				Err:       err,
				Result:    result,
				Ambiguous: errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded),
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Resync authorizes and forces a wallet reconciliation against the node.
func (d *Dispatcher) Resync(ctx context.Context, user *auth.User, walletName, clientIP string) (uint64, error) {
	w, err := d.resolve(Request{User: user, WalletName: walletName, ClientIP: clientIP}, permission.Resync)
	if err != nil {
		return 0, err
	}
	return w.Resync(ctx)
}

// audit records one sign or broadcast attempt with the acting user, wallet,
// message kind and contents. Both successes and failures are recorded.
func (d *Dispatcher) audit(req Request, op string, sequence uint64, err error) {
	entry := d.log.WithFields(map[string]interface{}{
		"user":     req.User.Username,
		"wallet":   req.WalletName,
		"kind":     req.Msg.Kind(),
		"op":       op,
		"sequence": sequence,
		"msg":      req.Msg,
	})

	outcome := "ok"
	if err != nil {
		outcome = "error"
		entry = entry.WithError(err)
	}

	if d.metrics != nil {
		if op == "sign" {
			d.metrics.RecordSign(req.WalletName, req.Msg.Kind(), outcome)
		} else {
			d.metrics.RecordBroadcast(req.WalletName, req.Msg.Kind(), outcome)
		}
	}

	entry.Infof("%s %s", op, outcome)
}
