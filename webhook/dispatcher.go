package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopworks/vaultgate/internal"
	"github.com/shopworks/vaultgate/secrets"
	"github.com/shopworks/vaultgate/signed"
)

const (
	defaultTimeout    = 10 * time.Second
	secretHexChars    = 48
	deliveryUserAgent = "vaultgate-webhook/1.0"
)

// Dispatcher registers targets and fans events out to them. Safe for
// concurrent use.
type Dispatcher struct {
	store   Store
	cipher  *secrets.Cipher
	client  *http.Client
	timeout time.Duration
	nowFn   func() time.Time
	wg      sync.WaitGroup
}

// NewDispatcher wires a Dispatcher. A zero timeout means ten seconds per
// target.
func NewDispatcher(store Store, cipher *secrets.Cipher, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Dispatcher{
		store:   store,
		cipher:  cipher,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		nowFn:   time.Now,
	}
}

// Register creates an active registration with a fresh signing secret. The
// plaintext secret is returned exactly once; only the encrypted form is
// stored.
func (d *Dispatcher) Register(ctx context.Context, url string) (*Registration, string, error) {
	secret, err := internal.RandomHex(secretHexChars)
	if err != nil {
		return nil, "", err
	}
	encrypted, err := d.cipher.EncryptString(secret)
	if err != nil {
		return nil, "", err
	}

	reg := &Registration{
		ID:              uuid.NewString(),
		URL:             url,
		EncryptedSecret: encrypted,
		Active:          true,
		CreatedAt:       d.nowFn(),
	}
	if err := d.store.Save(ctx, reg); err != nil {
		return nil, "", err
	}
	return reg, secret, nil
}

// Deliver dispatches one event to every active registration, each in its
// own goroutine with the bounded per-target timeout. It returns as soon as
// the fan-out is started; failures are recorded on the registration, not
// surfaced to the triggering request, and never retried automatically.
func (d *Dispatcher) Deliver(ctx context.Context, event string, data any) error {
	regs, err := d.store.Active(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(Event{
		Event:     event,
		Timestamp: d.nowFn().UTC(),
		Data:      data,
	})
	if err != nil {
		return err
	}

	for _, reg := range regs {
		d.wg.Add(1)
		go func(reg *Registration) {
			defer d.wg.Done()
			d.deliverOne(reg, event, body)
		}(reg)
	}
	return nil
}

// Wait blocks until every in-flight delivery has finished. Used by tests
// and graceful shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliverOne(reg *Registration, event string, body []byte) {
	status := DeliveryStatus{At: d.nowFn()}
	defer func() {
		// Recording is best-effort; audit of webhook traffic lives with
		// the caller.
		_ = d.store.RecordDelivery(context.Background(), reg.ID, status)
	}()

	secret, err := d.cipher.Decrypt(reg.EncryptedSecret)
	if err != nil {
		status.Error = "signing secret unavailable"
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reg.URL, bytes.NewReader(body))
	if err != nil {
		status.Error = err.Error()
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", deliveryUserAgent)
	req.Header.Set(EventHeader, event)
	req.Header.Set(SignatureHeader, signed.SignPayload(secret, body))

	resp, err := d.client.Do(req)
	if err != nil {
		status.Error = err.Error()
		return
	}
	defer resp.Body.Close()

	status.StatusCode = resp.StatusCode
	status.OK = resp.StatusCode >= 200 && resp.StatusCode < 300
	if !status.OK {
		status.Error = resp.Status
	}
}

// VerifyInbound authenticates a request claiming to come from the holder of
// a registration's secret: the stored secret is decrypted just before the
// comparison and the MAC is recomputed over the exact raw body bytes. An
// absent header, an unknown registration id, and a wrong MAC all reject the
// same way, so a caller probing ids learns nothing from the error.
func (d *Dispatcher) VerifyInbound(ctx context.Context, registrationID string, rawBody []byte, signatureHeader string) error {
	if signatureHeader == "" {
		return ErrMissingSignature
	}

	reg, err := d.store.Registration(ctx, registrationID)
	if errors.Is(err, ErrRegistrationNotFound) {
		return signed.ErrInvalidSignature
	}
	if err != nil {
		return err
	}
	secret, err := d.cipher.Decrypt(reg.EncryptedSecret)
	if err != nil {
		return signed.ErrInvalidSignature
	}
	return signed.VerifyPayload(secret, rawBody, signatureHeader)
}
